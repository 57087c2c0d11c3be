// Package http exposes the room booking services over JSON/HTTP on a chi router.
//
// Endpoints:
//   - POST /users: registers an account and logs it in. Body:
//     {"username","password","name"}. Responds 201 with the token payload.
//   - POST /users/token: logs in with JSON or form encoded credentials. The
//     token is returned in the body and set as the `access_token` cookie.
//     Throttled per client IP, answering 429 when exhausted.
//   - GET /users/me, POST /users/logout: current account and logout.
//   - GET /users, PUT /users/{username}/roles, GET /roles: administration.
//   - GET /rooms?min_capacity=&start_datetime=&end_datetime=: room search
//     annotated with `available` and `sufficient_roles`. GET /rooms/all lists
//     every room. POST /rooms and DELETE /rooms/{number} require admin.
//   - POST /bookings, POST /bookings/request, GET /bookings,
//     GET|PUT|DELETE /bookings/{id}: the caller's own bookings.
//   - GET /bookings/request, PUT /bookings/{id}/approve,
//     DELETE /bookings/{id}/decline: request review by administrators.
//   - GET /health: liveness plus a storage ping.
//
// Every route except registration, login and health expects a session token
// as `Authorization: Bearer <token>` or the `access_token` cookie. Errors are
// rendered as {"error_code","message","errors"}.
package http
