// internal/demo/replies.go
package demo

import "strings"

type rule struct {
	keywords []string
	reply    string
}

// rules are checked in order; the first rule with a keyword contained in the
// lowercased message wins.
var rules = []rule{
	{
		keywords: []string{"hola", "buenos días", "buenas tardes", "buenas noches"},
		reply:    "¡Hola! 👋 ¿En qué puedo ayudarte hoy?",
	},
	{
		keywords: []string{"valor", "precio", "costo", "tarifa", "cuánto cuesta"},
		reply:    "📊 Nuestros precios son muy competitivos. Contamos con planes desde $9.99 al mes. ¿Te gustaría conocer más detalles sobre algún plan específico?",
	},
	{
		keywords: []string{"producto", "servicio", "que ofrecen", "cómo funciona"},
		reply:    "🛍️ Ofrecemos una amplia gama de servicios, incluyendo atención al cliente, análisis de datos y automatización de marketing. ¿Hay algún servicio específico que te interese?",
	},
	{
		keywords: []string{"contacto", "contactar", "teléfono", "correo", "email", "datos", "llamar"},
		reply:    "📞 Puedes contactarnos al teléfono 555-123-4567 o enviarnos un correo a contacto@empresa.com. Nuestro horario de atención es de 9:00 a 18:00 de lunes a viernes.",
	},
	{
		keywords: []string{"problema", "error", "falla", "no funciona"},
		reply:    "🔧 Lamento escuchar eso. Para brindarte un mejor soporte técnico, ¿podrías describir el problema con más detalle?",
	},
	{
		keywords: []string{"horario", "abierto", "cerrado", "horas"},
		reply:    "🕒 Nuestro horario de atención es de lunes a viernes de 9:00 a 18:00 y sábados de 10:00 a 14:00. Domingos cerrado.",
	},
	{
		keywords: []string{"donde", "dónde", "ubicación", "dirección", "como llegar"},
		reply:    `📍 Nos encontramos ubicados en Av. Principal #123, Col. Centro. Puedes encontrarnos fácilmente en Google Maps buscando "Empresa".`,
	},
	{
		keywords: []string{"descuento", "promoción", "oferta"},
		reply:    "🎉 ¡Tenemos grandes promociones este mes! 30% de descuento en todos nuestros servicios para nuevos clientes y 15% para clientes actuales que renueven su suscripción.",
	},
	{
		keywords: []string{"gracias", "thank", "te agradezco"},
		reply:    "😊 ¡De nada! Ha sido un placer ayudarte. Si tienes más preguntas, no dudes en consultar.",
	},
	{
		keywords: []string{"adiós", "hasta luego", "bye"},
		reply:    "👋 ¡Hasta pronto! Que tengas un excelente día.",
	},
}

// Fallback is the reply to a message no rule matches.
const Fallback = "Lo siento, no entendí completamente tu pregunta. ¿Podrías reformularla o ser más específico? Estoy aquí para ayudarte."

// Reply returns the demo bot's answer to msg.
func Reply(msg string) string {
	lower := strings.ToLower(msg)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.reply
			}
		}
	}
	return Fallback
}
