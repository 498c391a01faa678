// Package docs registers the API description with swag.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "Custodia Labs",
            "url": "https://github.com/custodia-labs/corpus-core/issues"
        },
        "license": {
            "name": "Apache 2.0",
            "url": "http://www.apache.org/licenses/LICENSE-2.0.html"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/corpora": {
            "get": {
                "tags": ["Corpora"],
                "summary": "List corpora",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "boolean", "description": "Only corpora whose crawl is ready", "name": "ready", "in": "query"},
                    {"type": "integer", "description": "Offset", "name": "offset", "in": "query"},
                    {"type": "integer", "description": "Limit (max 100)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/domain.Corpus"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/corpora/crawl": {
            "post": {
                "tags": ["Corpora"],
                "summary": "Create a web corpus",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"description": "Corpus name and endpoint", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/driving.CreateFromCrawlRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/domain.Corpus"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/corpora/upload": {
            "post": {
                "tags": ["Corpora"],
                "summary": "Create a files corpus",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"description": "Corpus name and expected files", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/driving.CreateFromUploadRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/domain.Corpus"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/corpora/{id}": {
            "get": {
                "tags": ["Corpora"],
                "summary": "Get corpus",
                "produces": ["application/json"],
                "parameters": [{"type": "string", "description": "Corpus ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Corpus"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/corpora/{id}/crawl-ready": {
            "get": {
                "tags": ["Corpora"],
                "summary": "Crawl readiness",
                "description": "Ready once the crawl and the integrity check are done",
                "produces": ["application/json"],
                "parameters": [{"type": "string", "description": "Corpus ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Readiness"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/corpora/{id}/upload-ready": {
            "get": {
                "tags": ["Corpora"],
                "summary": "Upload readiness",
                "produces": ["application/json"],
                "parameters": [{"type": "string", "description": "Corpus ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Readiness"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/corpora/{id}/documents/delete": {
            "post": {
                "tags": ["Corpora"],
                "summary": "Delete texts",
                "description": "Schedules the removal of texts and one integrity check",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Corpus ID", "name": "id", "in": "path", "required": true},
                    {"description": "Data IDs", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.DeleteDocumentsRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/http.StatusResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/corpora/{id}/availability": {
            "get": {
                "tags": ["Features"],
                "summary": "Check feature availability",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Corpus ID", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "description": "Feature count (default 10)", "name": "features", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.AvailabilityResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/corpora/{id}/features": {
            "get": {
                "tags": ["Features"],
                "summary": "Get features",
                "description": "Returns the ranked features and documents, or starts computing them",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Corpus ID", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "description": "Feature count", "name": "features", "in": "query"},
                    {"type": "integer", "description": "Words per feature", "name": "words", "in": "query"},
                    {"type": "integer", "description": "Documents per feature", "name": "docs_per_feature", "in": "query"},
                    {"type": "integer", "description": "Features per document", "name": "features_per_doc", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Ready or busy", "schema": {"$ref": "#/definitions/http.GatedResponse"}},
                    "202": {"description": "Computation dispatched", "schema": {"$ref": "#/definitions/http.GatedResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/corpora/{id}/graph": {
            "get": {
                "tags": ["Features"],
                "summary": "Get feature graph",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Corpus ID", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "description": "Feature count", "name": "features", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Ready or busy", "schema": {"$ref": "#/definitions/http.GatedResponse"}},
                    "202": {"description": "Computation dispatched", "schema": {"$ref": "#/definitions/http.GatedResponse"}}
                }
            }
        },
        "/callbacks/compute": {
            "post": {
                "tags": ["Callbacks"],
                "summary": "Factorization finished",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"description": "Result", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/domain.ComputeCallback"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.StatusResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/callbacks/integrity": {
            "post": {
                "tags": ["Callbacks"],
                "summary": "Integrity check finished",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"description": "Corpus", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/domain.IntegrityCallback"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.StatusResponse"}}
                }
            }
        },
        "/callbacks/file-extract": {
            "post": {
                "tags": ["Callbacks"],
                "summary": "Upload extracted",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"description": "Extraction result", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/domain.FileExtractCallback"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.StatusResponse"}}
                }
            }
        },
        "/schedules": {
            "get": {
                "tags": ["Schedules"],
                "summary": "List maintenance schedules",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/domain.ScheduledTask"}}}
                }
            }
        }
    },
    "definitions": {
        "domain.Corpus": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "description": {"type": "string"},
                "crawl_ready": {"type": "boolean"},
                "integrity_check_in_progress": {"type": "boolean"},
                "corpus_ready": {"type": "boolean"},
                "data_source": {"type": "string", "enum": ["web", "files"]}
            }
        },
        "domain.Readiness": {
            "type": "object",
            "properties": {
                "corpus_id": {"type": "string"},
                "ready": {"type": "boolean"}
            }
        },
        "domain.ComputeCallback": {
            "type": "object",
            "properties": {
                "corpus_id": {"type": "string"},
                "feature_count": {"type": "integer"},
                "success": {"type": "boolean"},
                "error": {"type": "string"}
            }
        },
        "domain.IntegrityCallback": {
            "type": "object",
            "properties": {
                "corpus_id": {"type": "string"}
            }
        },
        "domain.FileExtractCallback": {
            "type": "object",
            "properties": {
                "corpus_id": {"type": "string"},
                "data_id": {"type": "string"},
                "file_id": {"type": "string"},
                "file_name": {"type": "string"},
                "unique_id": {"type": "string"},
                "text_hash": {"type": "string"},
                "success": {"type": "boolean"}
            }
        },
        "domain.ScheduledTask": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "type": {"type": "string"},
                "interval": {"type": "integer"},
                "enabled": {"type": "boolean"},
                "next_run": {"type": "string"}
            }
        },
        "driving.CreateFromCrawlRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "description": {"type": "string"},
                "endpoint": {"type": "string"},
                "crawl": {"type": "boolean"}
            }
        },
        "driving.CreateFromUploadRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "description": {"type": "string"},
                "files": {"type": "array", "items": {"type": "object"}}
            }
        },
        "http.AvailabilityResponse": {
            "description": "Availability of one feature count",
            "type": "object",
            "properties": {
                "corpus_id": {"type": "string"},
                "feature_count": {"type": "integer", "example": 10},
                "status": {"type": "string", "enum": ["available", "busy", "missing"], "example": "available"},
                "available_features": {"type": "array", "items": {"type": "integer"}}
            }
        },
        "http.DeleteDocumentsRequest": {
            "type": "object",
            "properties": {
                "data_ids": {"type": "array", "items": {"type": "string"}}
            }
        },
        "http.ErrorResponse": {
            "description": "API error response",
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "invalid request body"}
            }
        },
        "http.GatedResponse": {
            "description": "Feature result or computation state",
            "type": "object",
            "properties": {
                "outcome": {"type": "string", "enum": ["ready", "busy", "dispatched"], "example": "ready"},
                "busy": {"type": "boolean"},
                "retry": {"type": "boolean"},
                "feature_count": {"type": "integer", "example": 10},
                "available_features": {"type": "array", "items": {"type": "integer"}},
                "data": {"type": "object"}
            }
        },
        "http.StatusResponse": {
            "description": "Simple status response",
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "ok"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Corpus Core API",
	Description:      "Corpus feature coordinator. Manages text corpora and serves topic features once the numeric worker has computed them.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
