package repository

import (
	"loanbook/pkg/config"
	mongotx "loanbook/pkg/db/mongo"
)

// Stores bundles the persistence dependencies shared by the services.
type Stores struct {
	Items        ItemRepository
	Reservations ReservationRepository
	Requests     RequestRepository
	DeviceModels DeviceModelRepository
	Sequences    SequenceRepository
	Locker       ItemLocker
	Tx           mongotx.TransactionManager
}

// NewMongoStores wires every store against the configured database. The
// Redis locker is used when cfg selects it.
func NewMongoStores(cfg *config.Config) Stores {
	var locker ItemLocker
	if cfg.LockBackend == config.LockBackendRedis {
		locker = NewRedisItemLocker(cfg.Client.Redis, cfg.WriteTimeout)
	} else {
		locker = NewMongoItemLocker(cfg)
	}

	return Stores{
		Items:        NewMongoItemRepository(cfg),
		Reservations: NewMongoReservationRepository(cfg),
		Requests:     NewMongoRequestRepository(cfg),
		DeviceModels: NewMongoDeviceModelRepository(cfg),
		Sequences:    NewMongoSequenceRepository(cfg),
		Locker:       locker,
		Tx:           mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}
