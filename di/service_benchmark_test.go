package di_test

import (
	"testing"

	"github.com/mccandless/odi/di"
)

/*
   Shared helpers (NOT counted in benchmarks)
*/

func newBenchDB() *di.Service[DB] {
	return di.Init(func() *DB {
		return &DB{DSN: "postgres"}
	})
}

func newBenchUser() *di.Service[UserService] {
	return di.Init(func() *UserService {
		return &UserService{}
	})
}

func newBenchBinder(b *testing.B) *di.Binder {
	b.Helper()
	bd := di.NewBinder()
	if err := di.Bind[*DB](bd, &DB{DSN: "default"}); err != nil {
		b.Fatal(err)
	}
	if err := di.BindQualified[*DB, primary](bd, &DB{DSN: "primary"}); err != nil {
		b.Fatal(err)
	}
	if err := di.BindQualified[*DB, replica](bd, &DB{DSN: "replica"}); err != nil {
		b.Fatal(err)
	}
	return bd
}

/*
   Benchmarks
*/

func BenchmarkWith_SingleDependency(b *testing.B) {
	db := newBenchDB()
	injDB := di.Injecting(dbKey, db, func(u *UserService, d *DB) {
		u.DB = d
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		user := newBenchUser()
		_, _ = user.With(injDB)
	}
}

func BenchmarkWithAll_QualifiedPair(b *testing.B) {
	primaryDB := newBenchDB()
	replicaDB := newBenchDB()

	injDB := di.Injecting(dbKey, primaryDB, func(u *UserService, d *DB) { u.DB = d })
	injReplica := di.Injecting(replicaKey, replicaDB, func(u *UserService, d *DB) { u.Replica = d })

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		user := newBenchUser()
		_, _ = user.WithAll(injDB, injReplica)
	}
}

func BenchmarkQualifiedKey(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = di.QualifiedKey[*DB, replica]()
	}
}

func BenchmarkGetQualified_Instance(b *testing.B) {
	bd := newBenchBinder(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = di.GetQualified[*DB, replica](bd)
	}
}

func BenchmarkGetQualified_Unbound(b *testing.B) {
	bd := newBenchBinder(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = di.GetQualified[*DB, undeclared](bd)
	}
}

func BenchmarkInjectFields(b *testing.B) {
	bd := newBenchBinder(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var dst taggedRepo
		_ = di.InjectFields(bd, &dst)
	}
}
