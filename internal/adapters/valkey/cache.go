package valkey

import (
	"context"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/valkey-io/valkey-go"

	"github.com/propmap/propmap/internal/core/ports"
)

const defaultPrefix = "propmap:"

// Cache implements ports.CacheService on Valkey. Values are stored
// zstd-compressed under a key prefix.
type Cache struct {
	client valkey.Client
	prefix string
	enc    *zstd.Encoder
	dec    *zstd.Decoder
}

// Option configures a Cache.
type Option func(*Cache)

// WithPrefix namespaces every key. The default is "propmap:".
func WithPrefix(prefix string) Option {
	return func(c *Cache) { c.prefix = prefix }
}

// New connects to Valkey.
func New(addr string, opts ...Option) (*Cache, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("valkey connect: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	c := &Cache{client: client, prefix: defaultPrefix, enc: enc, dec: dec}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get returns the decompressed value. Absent keys return ports.ErrCacheMiss;
// so do values that fail to decompress.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Do(ctx, c.client.B().Get().Key(c.prefix+key).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, ports.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("valkey get %s: %w", key, err)
	}
	out, err := c.dec.DecodeAll(b, nil)
	if err != nil {
		return nil, ports.ErrCacheMiss
	}
	return out, nil
}

// Set stores value with a TTL in seconds.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	packed := c.enc.EncodeAll(value, make([]byte, 0, len(value)/4))
	cmd := c.client.B().Set().Key(c.prefix + key).Value(valkey.BinaryString(packed)).
		Ex(time.Duration(ttlSeconds) * time.Second).Build()
	return c.client.Do(ctx, cmd).Error()
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Do(ctx, c.client.B().Ping().Build()).Error()
}

func (c *Cache) Close() {
	c.client.Close()
	c.dec.Close()
}
