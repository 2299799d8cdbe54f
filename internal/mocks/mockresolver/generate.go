package mockresolver

//go:generate go run -v go.uber.org/mock/mockgen -destination=mockresolver.go -package=mockresolver github.com/mccandless/odi/di Resolver
