package dispatch

import (
	"context"
	"log"
	"time"

	"github.com/scriptgate/scriptgate/internal/clock"
	"github.com/scriptgate/scriptgate/model"
	"github.com/scriptgate/scriptgate/service/dao"
)

// reconcileLoop periodically repairs disagreement between the datastore and
// the device queues, e.g. after a crash between the persist and push steps of
// an enqueue, or a cancellation that raced a device fetch.
func (s *Service) reconcileLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdownCh:
			return
		case <-ticker.C:
			if err := s.reconcile(ctx); err != nil {
				log.Printf("dispatch: reconciliation sweep failed: %v", err)
			}
		}
	}
}

// reconcile applies two repairs:
//
//  1. terminal records still present in a device queue are removed – the
//     device must never fetch a package the datastore already closed;
//  2. records stuck in queued with no queue entry for longer than one
//     reconcile interval are marked failed, surfacing packages that would
//     otherwise stay invisible and undispatchable forever.
func (s *Service) reconcile(ctx context.Context) error {
	records, err := s.packageDAO.List(ctx)
	if err != nil {
		return err
	}
	for _, pkg := range records {
		switch {
		case pkg.Status.IsTerminal():
			if removed, err := s.removeFromQueue(ctx, pkg); err == nil && removed {
				log.Printf("dispatch: removed terminal package %s from device %s queue", pkg.ID, pkg.DeviceID)
			}
		case pkg.Status == model.StatusQueued:
			queued, err := s.inQueue(ctx, pkg)
			if err != nil || queued {
				continue
			}
			if pkg.CreatedAt != nil && clock.Now().Sub(pkg.CreatedAt.Time) < s.config.ReconcileInterval {
				continue
			}
			pkg.Status = model.StatusFailed
			pkg.CancellationReason = reasonLostFromQueue
			if err := s.packageDAO.Save(ctx, pkg); err != nil {
				log.Printf("dispatch: failed to mark lost package %s: %v", pkg.ID, err)
			}
		}
	}
	return nil
}

func (s *Service) removeFromQueue(ctx context.Context, pkg *model.ScriptPackage) (bool, error) {
	return s.queue.Remove(ctx, pkg.DeviceID, func(item *QueueItem) bool {
		return item.PackageID == pkg.ID
	})
}

func (s *Service) inQueue(ctx context.Context, pkg *model.ScriptPackage) (bool, error) {
	items, err := s.queue.Items(ctx, pkg.DeviceID)
	if err != nil {
		return false, err
	}
	for _, item := range items {
		if item.PackageID == pkg.ID {
			return true, nil
		}
	}
	return false, nil
}

// ListByDevice returns the persisted records for one device, optionally
// filtered by status.
func (s *Service) ListByDevice(ctx context.Context, deviceID string, statuses ...string) ([]*model.ScriptPackage, error) {
	parameters := []*dao.Parameter{dao.NewParameter("DeviceID", deviceID)}
	if len(statuses) > 0 {
		parameters = append(parameters, dao.NewParameter("Status", statuses...))
	}
	return s.packageDAO.List(ctx, parameters...)
}
