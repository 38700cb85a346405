package redistruct

import (
	"context"
	"strconv"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// ConnectionProvider is the process-wide connection callback consulted by
// the resolution chain ahead of cached and freshly created clients.
type ConnectionProvider func(ctx context.Context) (*redis.Client, error)

var (
	providerMux sync.RWMutex
	provider    ConnectionProvider
)

// SetConnectionProvider registers (or clears, with nil) the process-wide
// connection provider.
func SetConnectionProvider(p ConnectionProvider) {
	providerMux.Lock()
	provider = p
	providerMux.Unlock()
}

func connectionProvider() ConnectionProvider {
	providerMux.RLock()
	defer providerMux.RUnlock()
	return provider
}

// Clients are cached per routing target (URI + logical database) and shared
// by every descriptor with the same routing. Dials are deduplicated so
// concurrent first resolutions produce a single connection.
var (
	clientCache = xsync.NewMapOf[string, *redis.Client]()
	dialGroup   singleflight.Group
)

func (d *Descriptor) effectiveURI() string {
	if d.uri != "" {
		return d.uri
	}
	return CurrentConfig().URI
}

func (d *Descriptor) routingKey() string {
	db := -1
	if d.dbSet {
		db = d.logicalDB
	}
	return d.effectiveURI() + "|" + strconv.Itoa(db)
}

// createClient parses the descriptor's URI (falling back to the process
// default), applies the logical-database override, and returns the cached
// or freshly dialed client for that routing target.
func (d *Descriptor) createClient() (*redis.Client, error) {
	key := d.routingKey()
	if c, ok := clientCache.Load(key); ok {
		return c, nil
	}
	v, err, _ := dialGroup.Do(key, func() (any, error) {
		if c, ok := clientCache.Load(key); ok {
			return c, nil
		}
		opts, err := redis.ParseURL(d.effectiveURI())
		if err != nil {
			return nil, Error{Code: StoreError, Err: err, UserData: d.effectiveURI()}
		}
		if d.dbSet {
			opts.DB = d.logicalDB
		} else if opts.DB == 0 {
			opts.DB = CurrentConfig().DB
		}
		c := redis.NewClient(opts)
		clientCache.Store(key, c)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*redis.Client), nil
}

// CachedClient returns the client cached on this descriptor, nil when none
// has been resolved yet.
func (d *Descriptor) CachedClient() *redis.Client {
	return d.client.Load()
}

// CloseClient closes and forgets the descriptor's cached client. Mainly for
// tests and shutdown paths.
func (d *Descriptor) CloseClient() error {
	c := d.client.Swap(nil)
	clientCache.Delete(d.routingKey())
	if c == nil {
		return nil
	}
	return c.Close()
}
