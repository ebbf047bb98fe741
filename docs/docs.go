// Package docs swagger 文档，由 swag.Register 注册给 gin-swagger
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "API支持"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/auth/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["认证"],
                "summary": "登录",
                "parameters": [
                    {"description": "登录信息", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/service.LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/util.Response"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/util.Response"}}
                }
            }
        },
        "/auth/register": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["认证"],
                "summary": "注册",
                "parameters": [
                    {"description": "注册信息", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/service.RegisterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/util.Response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/util.Response"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["系统"],
                "summary": "健康检查",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/util.Response"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/util.Response"}}
                }
            }
        },
        "/quizzes": {
            "get": {
                "produces": ["application/json"],
                "tags": ["测验"],
                "summary": "测验列表",
                "parameters": [
                    {"type": "string", "description": "课程ID", "name": "courseId", "in": "query"},
                    {"type": "string", "description": "创建者ID", "name": "createdBy", "in": "query"},
                    {"type": "boolean", "description": "是否已发布", "name": "isPublished", "in": "query"},
                    {"type": "integer", "default": 1, "description": "页码", "name": "page", "in": "query"},
                    {"type": "integer", "default": 20, "description": "每页数量", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/util.Response"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["测验"],
                "summary": "创建测验",
                "parameters": [
                    {"description": "测验信息", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/service.QuizCreateRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/util.Response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/util.Response"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/util.Response"}}
                }
            }
        },
        "/quizzes/attempts/{attemptId}/submit": {
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["答题"],
                "summary": "提交答题",
                "parameters": [
                    {"type": "string", "description": "答题ID", "name": "attemptId", "in": "path", "required": true},
                    {"description": "答案", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/controller.SubmitRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/util.Response"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/util.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/util.Response"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/util.Response"}}
                }
            }
        },
        "/quizzes/my/attempts": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["答题"],
                "summary": "我的答题记录",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/util.Response"}}
                }
            }
        },
        "/quizzes/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["测验"],
                "summary": "测验详情",
                "parameters": [
                    {"type": "string", "description": "测验ID", "name": "id", "in": "path", "required": true},
                    {"type": "boolean", "description": "是否包含答案", "name": "includeAnswers", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/util.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/util.Response"}}
                }
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["测验"],
                "summary": "更新测验",
                "parameters": [
                    {"type": "string", "description": "测验ID", "name": "id", "in": "path", "required": true},
                    {"description": "需要更新的字段", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/service.QuizUpdateRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/util.Response"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/util.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/util.Response"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["测验"],
                "summary": "删除测验（软删除）",
                "parameters": [
                    {"type": "string", "description": "测验ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/util.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/util.Response"}}
                }
            }
        },
        "/quizzes/{id}/attempts": {
            "delete": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["测验"],
                "summary": "清空测验的全部答题记录",
                "parameters": [
                    {"type": "string", "description": "测验ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/util.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/util.Response"}}
                }
            }
        },
        "/quizzes/{id}/results": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["答题"],
                "summary": "测验成绩与统计",
                "parameters": [
                    {"type": "string", "description": "测验ID", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "default": 1, "description": "页码", "name": "page", "in": "query"},
                    {"type": "integer", "default": 20, "description": "每页数量", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/util.Response"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/util.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/util.Response"}}
                }
            }
        },
        "/quizzes/{id}/start": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["答题"],
                "summary": "开始答题",
                "parameters": [
                    {"type": "string", "description": "测验ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/util.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/util.Response"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/util.Response"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/util.Response"}}
                }
            }
        }
    },
    "definitions": {
        "controller.AnswerInput": {
            "type": "object",
            "required": ["questionId"],
            "properties": {
                "questionId": {"type": "string"},
                "selectedOption": {"type": "string"},
                "textAnswer": {"type": "string"}
            }
        },
        "controller.SubmitRequest": {
            "type": "object",
            "properties": {
                "answers": {"type": "array", "items": {"$ref": "#/definitions/controller.AnswerInput"}}
            }
        },
        "service.LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "service.OptionInput": {
            "type": "object",
            "required": ["text"],
            "properties": {
                "isCorrect": {"type": "boolean"},
                "text": {"type": "string"}
            }
        },
        "service.QuestionInput": {
            "type": "object",
            "required": ["question"],
            "properties": {
                "correctAnswer": {"type": "string"},
                "explanation": {"type": "string"},
                "id": {"type": "string"},
                "options": {"type": "array", "items": {"$ref": "#/definitions/service.OptionInput"}},
                "points": {"type": "integer", "minimum": 0},
                "question": {"type": "string"},
                "type": {"type": "string", "enum": ["multiple-choice", "true-false", "short-answer"]}
            }
        },
        "service.QuizCreateRequest": {
            "type": "object",
            "required": ["title", "description", "questions"],
            "properties": {
                "courseId": {"type": "string"},
                "description": {"type": "string"},
                "endDate": {"type": "string"},
                "isPublished": {"type": "boolean"},
                "maxAttempts": {"type": "integer", "minimum": 1},
                "passingScore": {"type": "integer", "maximum": 100, "minimum": 0},
                "questions": {"type": "array", "items": {"$ref": "#/definitions/service.QuestionInput"}},
                "randomizeQuestions": {"type": "boolean"},
                "showCorrectAnswers": {"type": "boolean"},
                "showResults": {"type": "boolean"},
                "startDate": {"type": "string"},
                "timeLimit": {"type": "integer", "minimum": 0},
                "title": {"type": "string"}
            }
        },
        "service.QuizUpdateRequest": {
            "type": "object",
            "properties": {
                "courseId": {"type": "string"},
                "description": {"type": "string"},
                "endDate": {"type": "string"},
                "isActive": {"type": "boolean"},
                "isPublished": {"type": "boolean"},
                "maxAttempts": {"type": "integer", "minimum": 1},
                "passingScore": {"type": "integer", "maximum": 100, "minimum": 0},
                "questions": {"type": "array", "items": {"$ref": "#/definitions/service.QuestionInput"}},
                "randomizeQuestions": {"type": "boolean"},
                "showCorrectAnswers": {"type": "boolean"},
                "showResults": {"type": "boolean"},
                "startDate": {"type": "string"},
                "timeLimit": {"type": "integer", "minimum": 0},
                "title": {"type": "string"}
            }
        },
        "service.RegisterRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "displayName": {"type": "string"},
                "email": {"type": "string"},
                "password": {"type": "string", "minLength": 6}
            }
        },
        "util.Response": {
            "type": "object",
            "properties": {
                "code": {"type": "integer"},
                "data": {},
                "kind": {"type": "string"},
                "message": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "Quiz 后端 API",
	Description:      "测验与答题服务：测验管理、答题生命周期与自动判分。",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
