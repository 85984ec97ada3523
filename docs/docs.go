// Package docs holds the swagger document served under /docs.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/": {
            "get": {
                "tags": ["health"],
                "summary": "Worker information",
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.WorkerInfoResponse"}}}
            }
        },
        "/health": {
            "get": {
                "tags": ["health"],
                "summary": "Health check",
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.HealthResponse"}}}
            }
        },
        "/streams": {
            "get": {
                "tags": ["streams"],
                "summary": "List streams",
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.StreamListResponse"}}}
            },
            "post": {
                "tags": ["streams"],
                "summary": "Start a stream",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.StreamRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.StreamResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/streams/{id}": {
            "get": {
                "tags": ["streams"],
                "summary": "Get stream details",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.StreamResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "delete": {
                "tags": ["streams"],
                "summary": "Stop a stream",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.SuccessResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/streams/{id}/frame": {
            "get": {
                "tags": ["streams"],
                "summary": "Latest frame",
                "produces": ["image/jpeg"],
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/streams/{id}/mjpeg": {
            "get": {
                "tags": ["streams"],
                "summary": "MJPEG display",
                "produces": ["multipart/x-mixed-replace"],
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/events": {
            "get": {
                "tags": ["events"],
                "summary": "Drain operator log",
                "produces": ["application/json", "application/x-protobuf"],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.EventsResponse"}}}
            }
        },
        "/events/recent": {
            "get": {
                "tags": ["events"],
                "summary": "Recent decisions",
                "produces": ["application/json"],
                "parameters": [{"type": "integer", "name": "limit", "in": "query"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.DetectionEvent"}}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/events/ws": {
            "get": {
                "tags": ["events"],
                "summary": "Live decisions",
                "responses": {"101": {"description": "Switching Protocols"}}
            }
        },
        "/gallery": {
            "get": {
                "tags": ["gallery"],
                "summary": "Current gallery",
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.GalleryResponse"}}}
            }
        },
        "/gallery/reload": {
            "post": {
                "tags": ["gallery"],
                "summary": "Reload gallery",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.GalleryResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/directory/rooms": {
            "get": {
                "tags": ["directory"],
                "summary": "List rooms",
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.Room"}}}}
            }
        },
        "/directory/cameras": {
            "get": {
                "tags": ["directory"],
                "summary": "List camera bindings",
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.Camera"}}}}
            }
        },
        "/history": {
            "get": {
                "tags": ["streams"],
                "summary": "Stream history",
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.HistoryEntry"}}}}
            }
        },
        "/system/stats": {
            "get": {
                "tags": ["system"],
                "summary": "Get system stats",
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}}}
            }
        }
    },
    "definitions": {
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string", "example": "stream not found"}}
        },
        "handlers.SuccessResponse": {
            "type": "object",
            "properties": {"message": {"type": "string", "example": "Stream stopped successfully"}}
        },
        "handlers.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "healthy"},
                "worker_id": {"type": "string", "example": "gate-1"},
                "components": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "handlers.WorkerInfoResponse": {
            "type": "object",
            "properties": {
                "worker_id": {"type": "string"},
                "status": {"type": "string"},
                "version": {"type": "string"},
                "capabilities": {"type": "array", "items": {"type": "string"}}
            }
        },
        "handlers.StreamListResponse": {
            "type": "object",
            "properties": {
                "streams": {"type": "array", "items": {"$ref": "#/definitions/models.StreamResponse"}},
                "count": {"type": "integer"}
            }
        },
        "handlers.EventsResponse": {
            "type": "object",
            "properties": {
                "entries": {"type": "array", "items": {"$ref": "#/definitions/models.LogEntry"}},
                "count": {"type": "integer"}
            }
        },
        "handlers.GalleryResponse": {
            "type": "object",
            "properties": {
                "version": {"type": "integer"},
                "loaded_at": {"type": "string"},
                "count": {"type": "integer"},
                "identities": {"type": "array", "items": {"$ref": "#/definitions/models.Identity"}}
            }
        },
        "models.StreamRequest": {
            "type": "object",
            "required": ["stream_id"],
            "properties": {
                "stream_id": {"type": "string"},
                "location": {"type": "string"},
                "host": {"type": "string"},
                "port": {"type": "integer"},
                "url": {"type": "string"},
                "username": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "models.StreamStats": {
            "type": "object",
            "properties": {
                "connect_attempts": {"type": "integer"},
                "connects": {"type": "integer"},
                "read_failures": {"type": "integer"},
                "frames_read": {"type": "integer"},
                "frames_processed": {"type": "integer"},
                "detect_cycles": {"type": "integer"},
                "events": {"type": "integer"},
                "relay_drops": {"type": "integer"}
            }
        },
        "models.StreamResponse": {
            "type": "object",
            "properties": {
                "stream_id": {"type": "string"},
                "location": {"type": "string"},
                "camera_address": {"type": "string"},
                "url": {"type": "string"},
                "state": {"type": "string", "enum": ["starting", "running", "stopping", "stopped", "failed"]},
                "last_error": {"type": "string"},
                "started_at": {"type": "string"},
                "stats": {"$ref": "#/definitions/models.StreamStats"},
                "mjpeg_url": {"type": "string"},
                "frame_url": {"type": "string"}
            }
        },
        "models.LogEntry": {
            "type": "object",
            "properties": {
                "timestamp": {"type": "string"},
                "stream_id": {"type": "string"},
                "message": {"type": "string"},
                "decision": {"type": "string", "enum": ["granted", "denied", "suppressed"]}
            }
        },
        "models.DetectionEvent": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "timestamp": {"type": "string"},
                "stream_id": {"type": "string"},
                "camera_address": {"type": "string"},
                "location": {"type": "string"},
                "room_id": {"type": "string"},
                "identity_id": {"type": "string"},
                "display_name": {"type": "string"},
                "department": {"type": "string"},
                "decision": {"type": "string"},
                "reason": {"type": "string"},
                "message": {"type": "string"},
                "evidence_path": {"type": "string"}
            }
        },
        "models.Identity": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "display_name": {"type": "string"},
                "department": {"type": "string"}
            }
        },
        "models.Room": {
            "type": "object",
            "properties": {"id": {"type": "string"}, "name": {"type": "string"}}
        },
        "models.Camera": {
            "type": "object",
            "properties": {"address": {"type": "string"}, "room_id": {"type": "string"}}
        },
        "models.HistoryEntry": {
            "type": "object",
            "properties": {"location": {"type": "string"}, "host": {"type": "string"}, "port": {"type": "integer"}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Facegate Worker API",
	Description:      "Face recognition access control worker for RTSP cameras",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
