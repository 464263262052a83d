// Package docs регистрирует описание API для /swagger
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "paths": {
        "/conversations": {
            "get": {"tags": ["conversations"], "summary": "Список диалогов пользователя", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["conversations"], "summary": "Начать диалог", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "Существующий диалог"}, "201": {"description": "Создан"}}}
        },
        "/conversations/{conversationId}/messages": {
            "get": {"tags": ["conversations"], "summary": "Сообщения диалога", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}, "403": {"description": "Нет доступа"}}},
            "post": {"tags": ["conversations"], "summary": "Отправить сообщение", "security": [{"BearerAuth": []}], "responses": {"201": {"description": "Создано"}, "403": {"description": "Нет доступа"}}}
        },
        "/conversations/{conversationId}/read": {
            "post": {"tags": ["conversations"], "summary": "Отметить диалог прочитанным", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/conversations/{conversationId}/archive": {
            "post": {"tags": ["conversations"], "summary": "Архивировать", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}},
            "delete": {"tags": ["conversations"], "summary": "Вернуть из архива", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/messages/{messageId}": {
            "patch": {"tags": ["messages"], "summary": "Изменить текст сообщения", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}, "403": {"description": "Не отправитель"}}}
        },
        "/notifications": {
            "get": {"tags": ["notifications"], "summary": "Последние уведомления", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["notifications"], "summary": "Создать уведомление", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "Дубликат"}, "201": {"description": "Создано"}}}
        },
        "/notifications/poll": {
            "get": {"tags": ["notifications"], "summary": "Опрос уведомлений", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/notifications/{notificationId}/read": {
            "post": {"tags": ["notifications"], "summary": "Отметить уведомление прочитанным", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}, "403": {"description": "Нет доступа"}}}
        },
        "/notifications/contacts": {
            "get": {"tags": ["notifications"], "summary": "Каналы доставки", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}},
            "put": {"tags": ["notifications"], "summary": "Обновить каналы доставки", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/push/subscriptions": {
            "post": {"tags": ["push"], "summary": "Подписка web push", "security": [{"BearerAuth": []}], "responses": {"201": {"description": "OK"}}},
            "delete": {"tags": ["push"], "summary": "Отписка web push", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "MWork Messaging API",
	Description:      "Переписка и уведомления MWork. Клиенты опрашивают API, постоянного соединения нет.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
