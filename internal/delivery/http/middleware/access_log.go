package middleware

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const HeaderRequestID = "X-Request-ID"

type AccessLogMiddleware struct {
	log logrus.FieldLogger
}

func NewAccessLogMiddleware(logger logrus.FieldLogger) *AccessLogMiddleware {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AccessLogMiddleware{log: logger}
}

func (m *AccessLogMiddleware) Middleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		rid := c.Get(HeaderRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(HeaderRequestID, rid)

		err := c.Next()

		status := c.Response().StatusCode()
		entry := m.log.WithFields(logrus.Fields{
			"rid":     rid,
			"method":  c.Method(),
			"path":    c.OriginalURL(),
			"status":  status,
			"latency": time.Since(start),
			"ip":      c.IP(),
		})
		if ua := c.Get("User-Agent"); ua != "" {
			entry = entry.WithField("ua", ua)
		}
		if status >= 500 {
			entry.Warn("[HTTP] access")
		} else {
			entry.Info("[HTTP] access")
		}
		return err
	}
}
