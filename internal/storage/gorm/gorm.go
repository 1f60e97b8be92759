// Package gormstorage implements the storage.Backend interface using GORM with
// a queue for ledger writes and a background writer goroutine. Preferences are
// read and written synchronously.
package gormstorage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/scaleformeter/scaleformeter/internal/config"
	"github.com/scaleformeter/scaleformeter/internal/database"
	"github.com/scaleformeter/scaleformeter/internal/logging"
	"github.com/scaleformeter/scaleformeter/internal/model"
	"github.com/scaleformeter/scaleformeter/internal/model/convert"
	"github.com/scaleformeter/scaleformeter/internal/queue"
	"github.com/scaleformeter/scaleformeter/pkg/core"
)

// DefaultFlushInterval is how often queued ledger rows are written.
const DefaultFlushInterval = time.Second

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	// DB is used as is when set; otherwise Init connects to postgres with DBConfig.
	DB            *gorm.DB
	DBConfig      config.DBConfig
	ResourceName  string
	LogManager    *logging.SlogManager
	FlushInterval time.Duration
}

// queues holds the write queues for batch insertion.
type queues struct {
	Events    *queue.Queue[model.OwnershipEvent]
	Snapshots *queue.Queue[model.RegistrySnapshot]
}

func newQueues() *queues {
	return &queues{
		Events:    queue.New[model.OwnershipEvent](),
		Snapshots: queue.New[model.RegistrySnapshot](),
	}
}

// Backend implements storage.Backend with GORM.
type Backend struct {
	deps   Dependencies
	queues *queues

	writeMu   sync.Mutex
	stopChan  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	if deps.ResourceName == "" {
		deps.ResourceName = "scaleformeter"
	}
	return &Backend{
		deps:   deps,
		queues: newQueues(),
	}
}

// Init connects if needed, migrates the schema and starts the writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		db, err := database.OpenPostgres(b.deps.DBConfig)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to access sql interface: %w", err)
		}
		if err = sqlDB.Ping(); err != nil {
			return fmt.Errorf("failed to validate connection: %w", err)
		}
		sqlDB.SetMaxOpenConns(10)
		b.deps.DB = db
	}

	b.deps.LogManager.WriteLog("gorm:setupDB", "Migrating schema", "INFO")
	if err := database.Setup(b.deps.DB, b.deps.ResourceName); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writerLoop()
	return nil
}

// Close stops the writer goroutine and writes whatever is still queued.
func (b *Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		if b.stopChan != nil {
			close(b.stopChan)
			<-b.done
		}
		if b.deps.DB != nil {
			err = b.flush()
		}
	})
	return err
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// RecordOwnership queues e for the writer.
func (b *Backend) RecordOwnership(e core.OwnershipEvent) error {
	b.queues.Events.Push(convert.CoreToOwnershipEvent(e))
	return nil
}

// RecordSnapshot queues s for the writer.
func (b *Backend) RecordSnapshot(s core.OwnershipStats) error {
	b.queues.Snapshots.Push(convert.CoreToRegistrySnapshot(s))
	return nil
}

// OwnershipEvents writes pending rows and returns the ledger entries of conn,
// or all of them when conn is empty, oldest first.
func (b *Backend) OwnershipEvents(conn core.ConnectionID) ([]core.OwnershipEvent, error) {
	if b.deps.DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if err := b.flush(); err != nil {
		return nil, err
	}

	q := b.deps.DB.Order("time asc, id asc")
	if conn != "" {
		q = q.Where(&model.OwnershipEvent{Connection: string(conn)})
	}
	var rows []model.OwnershipEvent
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query ownership events: %w", err)
	}

	out := make([]core.OwnershipEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, convert.OwnershipEventToCore(row))
	}
	return out, nil
}

// GetPreference returns the stored value of key for profile.
func (b *Backend) GetPreference(profile, key string) (string, bool, error) {
	if b.deps.DB == nil {
		return "", false, fmt.Errorf("database not initialized")
	}
	var pref model.Preference
	err := b.deps.DB.Where(&model.Preference{Profile: profile, Key: key}).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read preference %q: %w", key, err)
	}
	return pref.Value, true, nil
}

// SetPreference upserts value under key for profile.
func (b *Backend) SetPreference(profile, key, value string) error {
	if b.deps.DB == nil {
		return fmt.Errorf("database not initialized")
	}
	err := b.deps.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "profile"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&model.Preference{
		Profile:   profile,
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}).Error
	if err != nil {
		return fmt.Errorf("failed to write preference %q: %w", key, err)
	}
	return nil
}

// writeQueue writes all items from a queue in one transaction. On failure the
// items go back to the front of the queue.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log func(string, string, string)) error {
	if q.Empty() {
		return nil
	}

	items := q.Drain()
	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&items).Error
	})
	if err != nil {
		log(":DB:WRITER:", fmt.Sprintf("Error creating %s: %v", name, err), "ERROR")
		q.Requeue(items...)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func (b *Backend) flush() error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	log := b.deps.LogManager.WriteLog
	return errors.Join(
		writeQueue(b.deps.DB, b.queues.Events, "ownership events", log),
		writeQueue(b.deps.DB, b.queues.Snapshots, "registry snapshots", log),
	)
}

// writerLoop periodically drains the queues into the database.
func (b *Backend) writerLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			_ = b.flush()
		}
	}
}
