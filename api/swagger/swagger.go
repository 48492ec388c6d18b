package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Campus Outpass API",
        "description": "Gate-pass approval workflow for campus exits",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Signup and login"},
        {"name": "Outpass", "description": "Student outpass requests"},
        {"name": "Approvals", "description": "Teacher and HOD decisions"},
        {"name": "Gate", "description": "Security desk verification"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "Unavailable"}
                }
            }
        },
        "/auth/signup": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Register a student account",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SignupRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid payload or email not allowed"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/student/outpass/request": {
            "post": {
                "tags": ["Outpass"],
                "summary": "Request an outpass for today",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateOutpassRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "No class teacher or HOD assigned"}
                }
            }
        },
        "/student/outpass/mine": {
            "get": {
                "tags": ["Outpass"],
                "summary": "List own outpasses",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/student/outpass/{id}": {
            "get": {
                "tags": ["Outpass"],
                "summary": "Fetch one outpass",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/student/outpass/{id}/slip": {
            "get": {
                "tags": ["Outpass"],
                "summary": "Download the printable pass slip",
                "produces": ["application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "PDF slip"},
                    "409": {"description": "Outpass is not approved"}
                }
            }
        },
        "/teacher/outpass/assigned": {
            "get": {
                "tags": ["Approvals"],
                "summary": "List outpasses assigned to the teacher",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/teacher/outpass/approve/{id}": {
            "post": {
                "tags": ["Approvals"],
                "summary": "Teacher forwards a pending outpass",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Outpass is not pending or not assigned to this teacher"}
                }
            }
        },
        "/teacher/outpass/reject/{id}": {
            "post": {
                "tags": ["Approvals"],
                "summary": "Teacher rejects a pending outpass",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Outpass is not pending or not assigned to this teacher"}
                }
            }
        },
        "/hod/outpass/assigned": {
            "get": {
                "tags": ["Approvals"],
                "summary": "List outpasses assigned to the HOD",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/hod/outpass/approve/{id}": {
            "post": {
                "tags": ["Approvals"],
                "summary": "HOD grants final approval, issuing OTP and QR token",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Outpass has not been moved or not assigned to this HOD"}
                }
            }
        },
        "/hod/outpass/reject/{id}": {
            "post": {
                "tags": ["Approvals"],
                "summary": "HOD rejects a moved outpass",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Outpass has not been moved or not assigned to this HOD"}
                }
            }
        },
        "/hod/outpass/{id}/regenerate-otp": {
            "post": {
                "tags": ["Approvals"],
                "summary": "Reissue the OTP for an approved outpass",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Outpass is not approved or not assigned to this HOD"}
                }
            }
        },
        "/security/outpass/verify": {
            "post": {
                "tags": ["Gate"],
                "summary": "Verify an OTP at the gate",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/VerifyOTPRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Invalid OTP or not approved yet"},
                    "410": {"description": "OTP or outpass validity expired"}
                }
            }
        },
        "/security/outpass/expired": {
            "get": {
                "tags": ["Gate"],
                "summary": "List expired outpasses",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/security/outpass/expired.csv": {
            "get": {
                "tags": ["Gate"],
                "summary": "Export expired outpasses as CSV",
                "produces": ["text/csv"],
                "responses": {
                    "200": {"description": "CSV export"}
                }
            }
        }
    },
    "definitions": {
        "SignupRequest": {
            "type": "object",
            "required": ["full_name", "email", "password", "roll_no", "department", "branch"],
            "properties": {
                "full_name": {"type": "string"},
                "email": {"type": "string"},
                "password": {"type": "string", "minLength": 6},
                "roll_no": {"type": "string"},
                "department": {"type": "string"},
                "branch": {"type": "string"}
            }
        },
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "CreateOutpassRequest": {
            "type": "object",
            "required": ["reason", "type"],
            "properties": {
                "reason": {"type": "string"},
                "type": {"type": "string", "enum": ["CASUAL", "EMERGENCY"]}
            }
        },
        "VerifyOTPRequest": {
            "type": "object",
            "required": ["otp"],
            "properties": {
                "otp": {"type": "string", "minLength": 6, "maxLength": 6}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
