package messagepipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DirectoryConsumerConfig holds configuration for a DirectoryConsumer.
type DirectoryConsumerConfig struct {
	Dir          string
	PollInterval time.Duration
	// Extensions lists the accepted file extensions, lower case with the dot.
	Extensions []string
}

// DirectoryConsumer polls an inbox directory and emits every matching file
// once per process lifetime. Files are left in place. A Nacked file is
// forgotten and picked up again on the next poll.
type DirectoryConsumer struct {
	cfg        DirectoryConsumerConfig
	logger     zerolog.Logger
	outputChan chan Message
	doneChan   chan struct{}
	cancel     context.CancelFunc
	stopOnce   sync.Once

	mu   sync.Mutex
	seen map[string]bool
}

// NewDirectoryConsumer creates a DirectoryConsumer. The directory must exist.
func NewDirectoryConsumer(cfg DirectoryConsumerConfig, logger zerolog.Logger) (*DirectoryConsumer, error) {
	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("inbox directory %s: %w", cfg.Dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("inbox %s is not a directory", cfg.Dir)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{".xml", ".json"}
	}
	return &DirectoryConsumer{
		cfg:        cfg,
		logger:     logger.With().Str("component", "DirectoryConsumer").Str("dir", cfg.Dir).Logger(),
		outputChan: make(chan Message),
		doneChan:   make(chan struct{}),
		seen:       make(map[string]bool),
	}, nil
}

// Messages implements MessageConsumer.
func (c *DirectoryConsumer) Messages() <-chan Message { return c.outputChan }

// Done implements MessageConsumer.
func (c *DirectoryConsumer) Done() <-chan struct{} { return c.doneChan }

// Start polls immediately and then every PollInterval.
func (c *DirectoryConsumer) Start(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	go func() {
		defer close(c.doneChan)
		defer close(c.outputChan)

		ticker := time.NewTicker(c.cfg.PollInterval)
		defer ticker.Stop()
		for {
			if err := c.poll(pollCtx); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				c.logger.Error().Err(err).Msg("Inbox poll failed.")
			}
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return nil
}

// Stop ends polling and waits for the poll goroutine, bounded by ctx.
func (c *DirectoryConsumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		if c.cancel == nil {
			return
		}
		c.cancel()
		select {
		case <-c.doneChan:
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}

func (c *DirectoryConsumer) poll(ctx context.Context) error {
	entries, err := os.ReadDir(c.cfg.Dir)
	if err != nil {
		return fmt.Errorf("failed to list inbox: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !c.accepts(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(c.cfg.Dir, name)
		if !c.claim(path) {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			c.release(path)
			c.logger.Warn().Err(err).Str("path", path).Msg("Failed to read inbox file.")
			continue
		}
		msg := Message{
			MessageData: MessageData{ID: path, Payload: data, PublishTime: time.Now()},
			Attributes:  map[string]string{"file_name": name},
			Ack:         func() {},
			Nack:        func() { c.release(path) },
		}
		select {
		case c.outputChan <- msg:
			c.logger.Debug().Str("path", path).Msg("Inbox file emitted.")
		case <-ctx.Done():
			c.release(path)
			return ctx.Err()
		}
	}
	return nil
}

func (c *DirectoryConsumer) accepts(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range c.cfg.Extensions {
		if ext == want {
			return true
		}
	}
	return false
}

func (c *DirectoryConsumer) claim(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen[path] {
		return false
	}
	c.seen[path] = true
	return true
}

func (c *DirectoryConsumer) release(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.seen, path)
}
