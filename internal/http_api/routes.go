package http_api

import "github.com/gin-gonic/gin"

// routes sets up the routes for the HTTP server.
func (s *HTTPServer) routes() {
	s.router.GET("/healthz", s.health)
	if s.webhook != nil {
		s.router.POST("/telegram/webhook", gin.WrapH(s.webhook))
	}

	api := s.router.Group("/api/v1")
	api.GET("/users/:id/slots", s.slots)
	api.POST("/payments", s.createPayment)
	api.GET("/payments/:id/status", s.paymentStatus)
	api.POST("/payments/:id/confirm", s.confirmPayment)

	admin := api.Group("/admin", s.adminOnly())
	admin.POST("/users/:id/balance-flags/reset", s.resetBalanceFlags)
	admin.POST("/cycles/:name", s.runCycle)
}
