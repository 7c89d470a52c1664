package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/metrics"

	"github.com/labstack/echo/v4"
)

// リクエスト数とレイテンシを記録する。
// ラベルはパスパラメータ展開前のルート（/orders/:id）で集計する。
func Metrics(m *metrics.ServerMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			handler := c.Path()
			if handler == "" {
				handler = c.Request().URL.Path
			}

			//エラー返却時はHTTPErrorHandlerがまだ走っておらず
			//Response().Statusは書き込み前の値なので、errから決める
			status := c.Response().Status
			if err != nil && !c.Response().Committed {
				status = http.StatusInternalServerError
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				}
			}

			m.Requests.WithLabelValues(handler, strconv.Itoa(status)).Inc()
			m.LatencyMS.WithLabelValues(handler).Observe(float64(time.Since(start).Milliseconds()))
			return err
		}
	}
}
