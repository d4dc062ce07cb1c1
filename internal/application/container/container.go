package container

import (
	"canlidoviz/internal/application/port"
	"canlidoviz/internal/application/usecase/mirror"
	"canlidoviz/internal/application/usecase/stream"
)

// TransportFactory builds a fresh transport; a transport connects only once.
type TransportFactory func() (port.Transport, error)

type Deps struct {
	Resolver     port.CatalogResolver
	NewTransport TransportFactory
	// Repo is optional; without it there is no recorder.
	Repo         port.QuoteRepository
	RecordBuffer int
}

// Container builds the usecases over a fixed set of ports.
type Container struct {
	deps     Deps
	opts     stream.Options
	resolver port.CatalogResolver
	recorder *mirror.Recorder
}

// New memoizes the resolver so a rebuilt session reuses catalogs that already resolved.
func New(opts stream.Options, deps Deps) *Container {
	c := &Container{deps: deps, opts: opts}
	if deps.Resolver != nil {
		c.resolver = stream.NewMemoResolver(deps.Resolver)
	}
	return c
}

func (c *Container) Repository() port.QuoteRepository {
	return c.deps.Repo
}

func (c *Container) Resolver() port.CatalogResolver {
	return c.resolver
}

// Recorder is nil when no repository is configured.
func (c *Container) Recorder() *mirror.Recorder {
	if c.recorder == nil && c.deps.Repo != nil {
		c.recorder = mirror.NewRecorder(c.deps.Repo, c.deps.RecordBuffer)
	}
	return c.recorder
}

// NewSession returns an unstarted session on a new transport.
func (c *Container) NewSession() (*stream.Session, error) {
	tr, err := c.deps.NewTransport()
	if err != nil {
		return nil, err
	}
	return stream.NewSession(c.opts, stream.Deps{
		Transport: tr,
		Resolver:  c.resolver,
	}), nil
}
