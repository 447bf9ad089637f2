package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"cafepos/pkg/cart"
	"cafepos/pkg/catalog"
	"cafepos/pkg/config"
	"cafepos/pkg/deduction"
	"cafepos/pkg/httpapi"
	"cafepos/pkg/movement"
	"cafepos/pkg/order"
	"cafepos/pkg/seed"
	"cafepos/pkg/stock"
	"cafepos/pkg/storage/badgerstore"
	"cafepos/pkg/storage/memstore"
	"cafepos/pkg/store"
)

// Engine is the composed service graph of one process.
type Engine struct {
	Store      store.Store
	Movements  *movement.Writer
	Products   *catalog.Repository
	Stock      *stock.Repository
	StockOps   *stock.Service
	Carts      *cart.Service
	Orders     *order.Manager
	Deductions *deduction.Transactor
	server     *httpapi.Server
	logger     *slog.Logger
}

// Build opens the configured store, applies the seed file and wires the services.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := OpenStore(cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	e := &Engine{Store: s, logger: logger}
	e.Movements = movement.NewWriter(s, cfg.Orders.MovementBuffer, logger)
	e.Products = catalog.NewRepository(s)
	e.Stock = stock.NewRepository(s)
	e.StockOps = stock.NewService(s, e.Movements, logger)
	e.Carts = cart.NewService(cfg.Orders.Rate(), logger)

	policy := order.Policy{ExpressCompletion: cfg.Orders.ExpressCompletion}
	e.Orders = order.NewManager(s, policy, logger)
	e.Deductions = deduction.NewTransactor(s, policy, cfg.Orders.Retry(), e.Movements, logger)

	if cfg.SeedFile != "" {
		f, err := seed.Load(cfg.SeedFile)
		if err == nil {
			err = seed.Apply(ctx, e.Stock, e.Products, f, logger)
		}
		if err != nil {
			e.Close()
			return nil, err
		}
	}

	e.server = httpapi.New(httpapi.Deps{
		Products:    e.Products,
		Ingredients: e.Stock,
		Stock:       e.StockOps,
		Carts:       e.Carts,
		Orders:      e.Orders,
		Deductions:  e.Deductions,
		Logger:      logger,
	})
	return e, nil
}

// Handler returns the HTTP handler of the engine.
func (e *Engine) Handler() http.Handler {
	return e.server.Handler()
}

// Close flushes the movement log and closes the store.
func (e *Engine) Close() error {
	if e.Movements != nil {
		e.Movements.Close()
	}
	err := e.Store.Close()
	if err != nil {
		e.logger.Error("store close failed", slog.String("error", err.Error()))
	} else {
		e.logger.Info("store closed")
	}
	return err
}

// OpenStore opens the document store named by cfg.Driver.
func OpenStore(cfg config.Store, logger *slog.Logger) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverBadger:
		bc := badgerstore.DefaultConfig()
		bc.Path = cfg.Path
		bc.InMemory = cfg.InMemory
		bc.SyncWrites = cfg.SyncWrites
		bc.Logger = logger.With(slog.String("component", "badger"))
		s, err := badgerstore.Open(bc)
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		logger.Info("store opened", slog.String("driver", cfg.Driver), slog.String("path", cfg.Path), slog.Bool("in_memory", cfg.InMemory))
		return s, nil
	case config.DriverMemory:
		s, err := memstore.New(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open memory store: %w", err)
		}
		logger.Info("store opened", slog.String("driver", cfg.Driver), slog.String("snapshot", cfg.Path))
		return s, nil
	default:
		return nil, errors.New("unknown store driver " + cfg.Driver)
	}
}
