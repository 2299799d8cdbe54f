package di_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/mccandless/odi/di"
)

type taggedRepo struct {
	Primary *DB `inject:"primary"`
	Replica di.Qualified[*DB, replica]
	Default *DB `inject:""`
	Conn    *DB `inject:"field-only"`
	Logger  *Logger
}

var keyCmp = cmp.Comparer(func(a, b di.Key) bool { return a == b })

func bindRepoDeps(t *testing.T) *di.Binder {
	t.Helper()
	b := di.NewBinder()
	require.NoError(t, di.Bind[*DB](b, &DB{DSN: "default"}))
	require.NoError(t, di.BindQualified[*DB, primary](b, &DB{DSN: "primary"}))
	require.NoError(t, di.BindQualified[*DB, replica](b, &DB{DSN: "replica"}))
	require.NoError(t, di.BindQualified[*DB, fieldOnly](b, &DB{DSN: "conn"}))
	require.NoError(t, di.Bind[*Logger](b, &Logger{Level: "info"}))
	return b
}

func TestInspect_FieldSites(t *testing.T) {
	t.Parallel()

	want := []di.Site{
		{Kind: di.TargetField, Owner: "di_test.taggedRepo", Name: "Primary", Index: 0, Key: di.QualifiedKey[*DB, primary]()},
		{Kind: di.TargetField, Owner: "di_test.taggedRepo", Name: "Replica", Index: 1, Key: di.QualifiedKey[*DB, replica]()},
		{Kind: di.TargetField, Owner: "di_test.taggedRepo", Name: "Default", Index: 2, Key: di.KeyOf[*DB]()},
		{Kind: di.TargetField, Owner: "di_test.taggedRepo", Name: "Conn", Index: 3, Key: di.QualifiedKey[*DB, fieldOnly]()},
	}

	for _, in := range []any{taggedRepo{}, &taggedRepo{}, reflect.TypeOf(taggedRepo{})} {
		got, err := di.Inspect(in)
		require.NoError(t, err)
		if diff := cmp.Diff(want, got, keyCmp); diff != "" {
			t.Fatalf("Inspect(%T) mismatch (-want +got):\n%s", in, diff)
		}
	}

	assert.Equal(t, "field di_test.taggedRepo.Primary <- *di_test.DB@primary", want[0].String())
}

type badRepo struct {
	Unknown  *DB `inject:"nope"`
	hidden   *DB `inject:"primary"`
	Ghost    di.Qualified[*DB, undeclared]
	Twice    di.Qualified[*DB, replica] `inject:"primary"`
	Fine     *DB                        `inject:"replica"`
	Untagged *DB
}

type markedRepo struct {
	primary
	DB *DB `inject:"primary"`
}

type ghostRepo struct {
	*undeclared
	DB *DB
}

func TestInspect_Errors(t *testing.T) {
	t.Parallel()

	_ = badRepo{}.hidden

	sites, err := di.Inspect(badRepo{})
	require.Error(t, err)
	errs := multierr.Errors(err)
	require.Len(t, errs, 4)

	var unknown di.UnknownQualifierError
	require.True(t, errors.As(errs[0], &unknown))
	assert.Equal(t, "nope", unknown.Name)
	assert.Equal(t, "di_test.badRepo.Unknown", unknown.Site)

	var unexported di.UnexportedFieldError
	require.True(t, errors.As(errs[1], &unexported))
	assert.Equal(t, "di: injection field di_test.badRepo.hidden is unexported", unexported.Error())

	require.True(t, errors.As(errs[2], &unknown))
	assert.Equal(t, "di_test.undeclared", unknown.Name)

	assert.Contains(t, errs[3].Error(), "is Qualified and tagged")

	// valid sites are still reported
	require.Len(t, sites, 1)
	assert.Equal(t, "Fine", sites[0].Name)

	// type-level attachment
	_, err = di.Inspect(markedRepo{})
	var bad di.InvalidTargetError
	require.True(t, errors.As(err, &bad))
	assert.Equal(t, di.TargetType, bad.Target)
	assert.Equal(t, `di: qualifier "primary" cannot annotate type di_test.markedRepo`, bad.Error())

	_, err = di.Inspect(ghostRepo{})
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "di_test.undeclared", unknown.Name)
	assert.Equal(t, "di_test.ghostRepo", unknown.Site)

	for _, in := range []any{nil, 42, new(int)} {
		_, err := di.Inspect(in)
		require.ErrorIs(t, err, di.ErrNotStructPointer)
	}
}

func TestInjectFields(t *testing.T) {
	t.Parallel()

	b := bindRepoDeps(t)

	var repo taggedRepo
	require.NoError(t, di.InjectFields(b, &repo))

	assert.Equal(t, "primary", repo.Primary.DSN)
	assert.Equal(t, "replica", repo.Replica.Value().DSN)
	assert.Equal(t, "default", repo.Default.DSN)
	assert.Equal(t, "conn", repo.Conn.DSN)
	assert.Nil(t, repo.Logger, "untagged fields are left alone")
}

func TestInjectFields_Errors(t *testing.T) {
	t.Parallel()

	b := di.NewBinder()
	require.NoError(t, di.Bind[*DB](b, &DB{}))

	var repo taggedRepo
	err := di.InjectFields(b, &repo)
	var unbound di.UnboundError
	require.True(t, errors.As(err, &unbound))
	assert.Equal(t, di.QualifiedKey[*DB, primary](), unbound.Key)

	require.ErrorIs(t, di.InjectFields(nil, &repo), di.ErrNilResolver)
	require.ErrorIs(t, di.InjectFields(b, repo), di.ErrNotStructPointer)
	require.ErrorIs(t, di.InjectFields(b, (*taggedRepo)(nil)), di.ErrNotStructPointer)
	require.ErrorIs(t, di.InjectFields(b, nil), di.ErrNotStructPointer)
	require.ErrorIs(t, di.InjectFields(b, new(int)), di.ErrNotStructPointer)

	var bad badRepo
	require.Error(t, di.InjectFields(b, &bad))
}

func TestInvoke_Parameters(t *testing.T) {
	t.Parallel()

	b := bindRepoDeps(t)

	out, err := di.Invoke(b, func(p di.Qualified[*DB, primary], r di.Qualified[*DB, replica], d *DB) string {
		return p.Value().DSN + "," + r.Val.DSN + "," + d.DSN
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "primary,replica,default", out[0].String())

	boom := errors.New("boom")
	out, err = di.Invoke(b, func(*Logger) (int, error) { return 0, boom })
	require.ErrorIs(t, err, boom)
	require.Len(t, out, 1)

	out, err = di.Invoke(b, func(*Logger) error { return nil })
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestInvoke_Errors(t *testing.T) {
	t.Parallel()

	b := bindRepoDeps(t)

	_, err := di.Invoke(b, func(di.Qualified[*DB, fieldOnly]) {})
	var bad di.InvalidTargetError
	require.True(t, errors.As(err, &bad))
	assert.Equal(t, di.TargetParameter, bad.Target)

	_, err = di.Invoke(b, func(*BasketService) {})
	var unbound di.UnboundError
	require.True(t, errors.As(err, &unbound))

	_, err = di.Invoke(b, "not a func")
	require.ErrorIs(t, err, di.ErrNotFunc)

	var nilFn func()
	_, err = di.Invoke(b, nilFn)
	require.ErrorIs(t, err, di.ErrNotFunc)

	_, err = di.Invoke(nil, func() {})
	require.ErrorIs(t, err, di.ErrNilResolver)
}

type dbModule struct {
	dsn string
}

func (m dbModule) ProvidePrimary() di.Qualified[*DB, primary] {
	return di.Qualify[primary](&DB{DSN: m.dsn})
}

func (m dbModule) ProvideReplica(p di.Qualified[*DB, primary]) (di.Qualified[*DB, replica], error) {
	return di.Qualify[replica](&DB{DSN: p.Val.DSN + "-ro"}), nil
}

func (m dbModule) ProvideBasket(r di.Qualified[*DB, replica], l *Logger) *BasketService {
	return &BasketService{DB: r.Val, Logger: l}
}

// not a provider
func (m dbModule) DSN() string { return m.dsn }

func TestInstall_ProviderMethods(t *testing.T) {
	t.Parallel()

	b := di.NewBinder()
	require.NoError(t, di.Bind[*Logger](b, &Logger{Level: "warn"}))
	require.NoError(t, di.Install(b, dbModule{dsn: "pg"}))

	assert.True(t, b.Has(di.QualifiedKey[*DB, primary]()))
	assert.True(t, b.Has(di.QualifiedKey[*DB, replica]()))
	assert.True(t, b.Has(di.KeyOf[*BasketService]()))
	assert.False(t, b.Has(di.KeyOf[*DB]()))
	assert.False(t, b.Has(di.KeyOf[string]()))

	bs, err := di.Get[*BasketService](b)
	require.NoError(t, err)
	assert.Equal(t, "pg-ro", bs.DB.DSN)
	assert.Equal(t, "warn", bs.Logger.Level)

	p, err := di.GetQualified[*DB, primary](b)
	require.NoError(t, err)
	assert.Equal(t, "pg", p.DSN)
}

type badModule struct{}

func (badModule) ProvideNothing() {}

func (badModule) ProvideTwo() (*DB, *Logger) { return nil, nil }

func (badModule) ProvideErr() error { return nil }

func (badModule) ProvideFieldOnly() di.Qualified[*DB, fieldOnly] {
	return di.Qualify[fieldOnly](&DB{})
}

func (badModule) ProvideParam(di.Qualified[*Logger, fieldOnly]) *Logger { return nil }

func TestInstall_Errors(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, di.Install(di.NewBinder(), nil), di.ErrNilModule)

	err := di.Install(di.NewBinder(), badModule{})
	errs := multierr.Errors(err)
	require.Len(t, errs, 5)

	var reasons []string
	var targets []di.Target
	for _, e := range errs {
		var ip di.InvalidProviderError
		var it di.InvalidTargetError
		switch {
		case errors.As(e, &ip):
			reasons = append(reasons, ip.Reason)
		case errors.As(e, &it):
			targets = append(targets, it.Target)
		default:
			t.Fatalf("unexpected error %v", e)
		}
	}
	// methods are visited in name order
	assert.Equal(t, []string{"first result must not be error", "must return T or (T, error)", "second result must be error"}, reasons)
	assert.Equal(t, []di.Target{di.TargetMethod, di.TargetParameter}, targets)

	// a module providing an already bound key
	b := di.NewBinder()
	require.NoError(t, di.BindQualified[*DB, primary](b, &DB{}))
	err = di.Install(b, dbModule{})
	var dup di.DuplicateBindingError
	require.True(t, errors.As(err, &dup))
}
