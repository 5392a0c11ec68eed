// Package api hosts the HTTP server, middleware, HTML pages and JSON handlers
// of the news site. Notable routes:
//   - GET / , /confirm and /article/{id} for readers.
//   - GET /api/article/{id}/... for explanations, persona opinions and extras.
//   - GET /api/news/refresh, /api/article/seed-one and /api/article/force-add-one
//     to trigger ingestion jobs.
//   - /admin and /api/admin/... for editors, guarded by the admin secret.
//   - GET /healthz / readyz for health checks and GET /metrics for Prometheus.
package api
