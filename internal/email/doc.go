// Package email envía notificaciones por SMTP.
//
// Lo usa el handler de eventos UserNotification: renderiza asunto y cuerpo
// con text/template y html/template sobre los datos del request, y envía con
// go-mail. DiagnoseSMTP clasifica los errores para logs y métricas.
package email
