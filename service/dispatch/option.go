package dispatch

import (
	"github.com/scriptgate/scriptgate/model"
	"github.com/scriptgate/scriptgate/service/dao"
	"github.com/scriptgate/scriptgate/service/messaging"
)

type Option func(*Service)

// WithConfig overrides the default configuration.
func WithConfig(config Config) Option {
	return func(s *Service) { s.config = config }
}

// WithPackageDAO swaps the package record store, e.g. for the external
// transactional datastore.
func WithPackageDAO(dao dao.Service[string, model.ScriptPackage]) Option {
	return func(s *Service) { s.packageDAO = dao }
}

// WithQueue swaps the per-device ordered queue substrate.
func WithQueue(queue messaging.OrderedList[QueueItem]) Option {
	return func(s *Service) { s.queue = queue }
}

// WithCommandChannelFactory controls how per-device command channels are
// created, e.g. to use the durable fs vendor instead of memory queues.
func WithCommandChannelFactory(factory func(deviceID string) messaging.Queue[Command]) Option {
	return func(s *Service) { s.newChannel = factory }
}
