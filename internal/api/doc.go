// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

/*
Package api provides the HTTP and websocket surface of Threadline.

Routing uses Chi with the go-chi middleware ecosystem (cors, httprate).
Every JSON response uses the models.APIResponse envelope:

	{"status":"success","data":{...},"metadata":{"timestamp":"..."}}
	{"status":"error","error":{"code":"VALIDATION_ERROR","message":"..."},"metadata":{...}}

# Endpoints

	GET    /api/v1/health/live
	GET    /api/v1/health/ready
	POST   /api/v1/auth/signup
	POST   /api/v1/auth/login
	GET    /api/v1/pages
	POST   /api/v1/pages                  (auth)
	GET    /api/v1/pages/{id}
	PUT    /api/v1/pages/{id}             (auth, author only)
	GET    /api/v1/pages/{id}/comments
	GET    /api/v1/comments?page=&parent=
	POST   /api/v1/comments               (auth)
	GET    /api/v1/comments/{id}
	PUT    /api/v1/comments/{id}          (auth, author only)
	DELETE /api/v1/comments/{id}          (auth, author only)
	GET    /api/v1/comments/{id}/replies
	POST   /api/v1/comments/{id}/vote     (auth)
	GET    /ws/pages/{id}
	GET    /ws/notifications              (auth, rejected in-band)
	GET    /metrics

# Error Codes

Domain errors map to HTTP statuses in respondDomainError:

	VALIDATION_ERROR      400
	AUTHENTICATION_ERROR  401
	PERMISSION_DENIED     403
	NOT_FOUND             404
	CONFLICT              409
	RATE_LIMITED          429
	DATABASE_ERROR        500

Websocket sockets authenticate with the same token as the REST API. Since
browsers cannot set headers on an upgrade, the token may also be passed as
?token= or in the token cookie.
*/
package api
