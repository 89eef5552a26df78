package scriptgate

import (
	"context"
	"fmt"

	"github.com/viant/afs"

	"github.com/scriptgate/scriptgate/service/approval"
	apmemory "github.com/scriptgate/scriptgate/service/approval/memory"
	"github.com/scriptgate/scriptgate/service/dispatch"
	"github.com/scriptgate/scriptgate/service/event"
	"github.com/scriptgate/scriptgate/service/orchestrator"
	"github.com/scriptgate/scriptgate/service/packager"
	"github.com/scriptgate/scriptgate/service/signer"
)

// Service wires the whole pipeline together: signer, packager, approval
// engine, dispatch and orchestrator. Every collaborator can be replaced via
// an Option; anything left unset gets the in-memory default.
type Service struct {
	config          Config
	fs              afs.Service
	signer          signer.Service
	packager        *packager.Service
	policyProvider  approval.PolicyProvider
	approvalService approval.Service
	eventService    *event.Service
	dispatcher      *dispatch.Service
	orchestrator    *orchestrator.Service
	dispatchOptions []dispatch.Option
}

// New builds the pipeline. Construction fails when the signing key cannot be
// acquired or the policy catalog cannot be loaded.
func New(ctx context.Context, options ...Option) (*Service, error) {
	ret := &Service{config: DefaultConfig()}
	for _, option := range options {
		option(ret)
	}
	if err := ret.config.Validate(); err != nil {
		return nil, err
	}
	if err := ret.ensureBaseSetup(ctx); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *Service) ensureBaseSetup(ctx context.Context) error {
	if s.fs == nil {
		s.fs = afs.New()
	}
	if s.signer == nil {
		signerConfig := s.config.Signer
		if signerConfig.Environment == "" {
			signerConfig.Environment = s.config.Environment
		}
		var err error
		if s.signer, err = signer.New(ctx, &signerConfig); err != nil {
			return err
		}
	}
	if s.packager == nil {
		s.packager = packager.New(s.signer)
	}
	if s.policyProvider == nil {
		if s.config.PolicyCatalogURL != "" {
			catalog, err := approval.LoadCatalog(ctx, s.fs, s.config.PolicyCatalogURL)
			if err != nil {
				return err
			}
			s.policyProvider = catalog
		} else {
			s.policyProvider = approval.StaticPolicies{}
		}
	}
	if s.approvalService == nil {
		s.approvalService = apmemory.New(s.policyProvider,
			apmemory.WithConfig(s.config.approvalConfig()))
	}
	if s.eventService == nil {
		var err error
		if s.eventService, err = event.New("memory"); err != nil {
			return fmt.Errorf("failed to create event service: %w", err)
		}
		// The default listeners drain the lifecycle queues so publishing
		// never stalls while nothing is subscribed; SetListenerOf replaces
		// them with real consumers.
		s.eventService.SetListener(func(*event.Event[any]) {})
		if err = event.SetListenerOf(s.eventService, func(*event.Event[orchestrator.ExecutionQueued]) {}); err != nil {
			return err
		}
		if err = event.SetListenerOf(s.eventService, func(*event.Event[orchestrator.ExecutionCompleted]) {}); err != nil {
			return err
		}
	}
	if s.dispatcher == nil {
		options := append([]dispatch.Option{
			dispatch.WithConfig(s.config.dispatchConfig()),
		}, s.dispatchOptions...)
		s.dispatcher = dispatch.New(s.packager, options...)
	}
	if s.orchestrator == nil {
		s.orchestrator = orchestrator.New(s.dispatcher,
			orchestrator.WithConfig(s.config.orchestratorConfig()),
			orchestrator.WithEventService(s.eventService))
	}
	return nil
}

// Start launches background work (the dispatch reconciliation sweep).
func (s *Service) Start(ctx context.Context) {
	s.dispatcher.Start(ctx)
}

// Shutdown stops background work.
func (s *Service) Shutdown() {
	s.dispatcher.Shutdown()
}

func (s *Service) Signer() signer.Service { return s.signer }

func (s *Service) Packager() *packager.Service { return s.packager }

func (s *Service) Approval() approval.Service { return s.approvalService }

func (s *Service) Events() *event.Service { return s.eventService }

func (s *Service) Dispatcher() *dispatch.Service { return s.dispatcher }

func (s *Service) Orchestrator() *orchestrator.Service { return s.orchestrator }
