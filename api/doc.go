// Package api implements the HTTP surface of the task service.
//
// Routes:
//
//	POST   /todos       create a task from {"task": "..."}       201
//	GET    /todos       list every task as a JSON array          200
//	GET    /todos/{id}  fetch one task as a JSON object          200
//	PUT    /todos/{id}  replace the status from {"status": "..."} 200
//	DELETE /todos/{id}  delete a task                            200
//	GET    /health      liveness                                 200
//
// Failures are answered with the underlying error message as plain text.
// The status code follows the error kind: 400 validation, 404 not found,
// 409 conflict, 500 anything else.
package api
