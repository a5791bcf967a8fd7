package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/koios/matrx-display/internal/mailbox"
	"go.uber.org/zap"
)

// DefaultQueueSize is the command queue capacity
const DefaultQueueSize = 3

// Op is a storage command kind
type Op int

const (
	OpStore Op = iota
	OpDelete
	OpExists
	OpFormat
)

func (o Op) String() string {
	switch o {
	case OpStore:
		return "store"
	case OpDelete:
		return "delete"
	case OpExists:
		return "exists"
	case OpFormat:
		return "format"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Command is one queued storage request
type Command struct {
	Op    Op
	Key   string
	Value []byte

	seq uint64
}

// Result is the outcome of one Command
type Result struct {
	Exists bool
	Err    error

	seq uint64
}

// ErrorKind tags where a storage operation failed
type ErrorKind string

const (
	KindWrite  ErrorKind = "write"
	KindCommit ErrorKind = "commit"
	KindFormat ErrorKind = "format"
	KindRead   ErrorKind = "read"
)

// OpError is the typed failure delivered for a storage command
type OpError struct {
	Kind ErrorKind
	Key  string
	Err  error
}

func (e *OpError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s failed: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("storage %s failed for %q: %v", e.Kind, e.Key, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Quiescer pauses whatever else touches the storage bus
type Quiescer interface {
	Park()
	Unpark()
}

// Queue serializes storage commands through a single consumer. Results are
// delivered through one last-value-wins slot, so callers go through Client.
type Queue struct {
	db       *Database
	quiescer Quiescer
	logger   *zap.Logger

	commands chan Command
	results  *mailbox.Signal[Result]
	seq      atomic.Uint64
}

// NewQueue creates a queue of the given capacity in front of db
func NewQueue(db *Database, quiescer Quiescer, size int, logger *zap.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{
		db:       db,
		quiescer: quiescer,
		logger:   logger,
		commands: make(chan Command, size),
		results:  mailbox.New[Result](),
	}
}

// Run processes commands one at a time in submission order until ctx is done
func (q *Queue) Run(ctx context.Context) error {
	q.logger.Info("Storage queue started", zap.Int("capacity", cap(q.commands)))
	for {
		select {
		case <-ctx.Done():
			q.logger.Info("Storage queue stopped")
			return ctx.Err()
		case cmd := <-q.commands:
			res := q.process(ctx, cmd)
			res.seq = cmd.seq
			if res.Err != nil {
				q.logger.Error("Storage command failed",
					zap.Stringer("op", cmd.Op),
					zap.String("key", cmd.Key),
					zap.Error(res.Err))
			}
			q.results.Signal(res)
		}
	}
}

// submit enqueues cmd, blocking while the queue is full
func (q *Queue) submit(ctx context.Context, cmd Command) (uint64, error) {
	cmd.seq = q.seq.Add(1)
	select {
	case q.commands <- cmd:
		return cmd.seq, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (q *Queue) process(ctx context.Context, cmd Command) Result {
	switch cmd.Op {
	case OpStore:
		return Result{Err: q.write(ctx, cmd.Key, func(tx *Transaction) error {
			return tx.Write(cmd.Key, cmd.Value)
		})}

	case OpDelete:
		found, err := q.db.Contains(ctx, cmd.Key)
		if err != nil {
			return Result{Err: &OpError{Kind: KindRead, Key: cmd.Key, Err: err}}
		}
		if !found {
			// deleting an absent key succeeds without touching the medium
			return Result{}
		}
		return Result{Err: q.write(ctx, cmd.Key, func(tx *Transaction) error {
			return tx.Delete(cmd.Key)
		})}

	case OpExists:
		found, err := q.db.Contains(ctx, cmd.Key)
		if err != nil {
			return Result{Err: &OpError{Kind: KindRead, Key: cmd.Key, Err: err}}
		}
		return Result{Exists: found}

	case OpFormat:
		q.quiescer.Park()
		err := q.db.Format(ctx)
		q.quiescer.Unpark()
		if err != nil {
			return Result{Err: &OpError{Kind: KindFormat, Err: err}}
		}
		return Result{}
	}
	return Result{Err: fmt.Errorf("unknown storage op %v", cmd.Op)}
}

func (q *Queue) write(ctx context.Context, key string, stage func(*Transaction) error) error {
	tx := q.db.WriteTransaction()
	if err := stage(tx); err != nil {
		return &OpError{Kind: KindWrite, Key: key, Err: err}
	}

	q.quiescer.Park()
	err := tx.Commit(ctx)
	q.quiescer.Unpark()
	if err != nil {
		return &OpError{Kind: KindCommit, Key: key, Err: err}
	}
	return nil
}

// Client submits one command at a time and waits for its result
type Client struct {
	mu    sync.Mutex
	queue *Queue
}

// NewClient returns a client for q
func NewClient(q *Queue) *Client {
	return &Client{queue: q}
}

// Store upserts key
func (c *Client) Store(ctx context.Context, key string, value []byte) error {
	res, err := c.do(ctx, Command{Op: OpStore, Key: key, Value: value})
	if err != nil {
		return err
	}
	return res.Err
}

// Delete removes key. Deleting an absent key succeeds.
func (c *Client) Delete(ctx context.Context, key string) error {
	res, err := c.do(ctx, Command{Op: OpDelete, Key: key})
	if err != nil {
		return err
	}
	return res.Err
}

// Exists reports whether key has a record
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	res, err := c.do(ctx, Command{Op: OpExists, Key: key})
	if err != nil {
		return false, err
	}
	return res.Exists, res.Err
}

// Format erases every record
func (c *Client) Format(ctx context.Context) error {
	res, err := c.do(ctx, Command{Op: OpFormat})
	if err != nil {
		return err
	}
	return res.Err
}

func (c *Client) do(ctx context.Context, cmd Command) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq, err := c.queue.submit(ctx, cmd)
	if err != nil {
		return Result{}, err
	}

	for {
		res, err := c.queue.results.Wait(ctx)
		if err != nil {
			return Result{}, err
		}
		// results of commands whose caller gave up are discarded here
		if res.seq == seq {
			return res, nil
		}
	}
}

// MountOrFormat mounts db, formatting the medium once if the image is blank or
// damaged. An error means the store cannot be used at all.
func MountOrFormat(ctx context.Context, db *Database, quiescer Quiescer, logger *zap.Logger) error {
	err := db.Mount(ctx)
	if err == nil {
		logger.Info("Storage mounted", zap.Int("records", len(db.Keys())))
		return nil
	}

	if errors.Is(err, ErrBlank) {
		logger.Info("Storage is blank, formatting")
	} else {
		logger.Warn("Storage mount failed, formatting", zap.Error(err))
	}

	quiescer.Park()
	ferr := db.Format(ctx)
	quiescer.Unpark()
	if ferr != nil {
		return fmt.Errorf("failed to format storage after mount error (%v): %w", err, ferr)
	}

	if err := db.Mount(ctx); err != nil {
		return fmt.Errorf("failed to mount storage after format: %w", err)
	}
	logger.Info("Storage formatted and mounted")
	return nil
}
