package mw

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

type bodyCacheWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyCacheWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w bodyCacheWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// EventCache holds rendered event reads, keyed by the :event_id route
// parameter. Entries live for the TTL or until a successful write under the
// same event evicts them; writes addressed by booking id only age out.
type EventCache struct {
	entries *cache.Cache
	ttl     time.Duration
}

// NewEventCache creates an EventCache whose entries live for ttl.
func NewEventCache(ttl time.Duration) *EventCache {
	return &EventCache{
		entries: cache.New(ttl, 10*time.Minute),
		ttl:     ttl,
	}
}

func eventKey(c *gin.Context) string {
	return "event:" + c.Param("event_id")
}

// Read serves a cached 2xx response for the event, or records the handler's.
func (ec *EventCache) Read() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := eventKey(c)
		if hit, found := ec.entries.Get(key); found {
			cached := hit.(cachedResponse)
			header := c.Writer.Header()
			for k, v := range cached.headers {
				header[k] = v
			}
			header.Set("X-Cache", "HIT")
			c.Writer.WriteHeader(cached.status)
			c.Writer.Write(cached.body)
			c.Abort()
			return
		}

		blw := &bodyCacheWriter{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = blw
		c.Writer.Header().Set("X-Cache", "MISS")

		c.Next()

		status := blw.Status()
		if status < 200 || status >= 300 {
			return
		}
		headers := blw.Header().Clone()
		headers.Del("X-Cache")
		ec.entries.Set(key, cachedResponse{
			status:  status,
			headers: headers,
			body:    append([]byte(nil), blw.body.Bytes()...),
		}, ec.ttl)
	}
}

// Evict drops the event's entry once a write on it has succeeded.
func (ec *EventCache) Evict() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Writer.Status() < http.StatusBadRequest {
			ec.entries.Delete(eventKey(c))
		}
	}
}
