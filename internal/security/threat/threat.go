// Package threat clasifica input hostil por heurísticas de patrones.
//
// Un match significa RECHAZO: el input nunca se "limpia" y se deja pasar.
// La limpieza cosmética (Sanitize) es una operación distinta y previa,
// pensada para normalizar, no para neutralizar ataques.
package threat

import "regexp"

// Class es el conjunto cerrado de clases de amenaza detectables.
type Class string

const (
	SQL     Class = "sql"
	XSS     Class = "xss"
	Command Class = "command"
	Path    Class = "path"
)

// Classes lista todas las clases, en el orden en que se evalúan.
var Classes = []Class{SQL, XSS, Command, Path}

var patterns = map[Class][]*regexp.Regexp{
	SQL: {
		regexp.MustCompile(`(?i)\b(union|select|insert|update|delete|drop|create|alter|exec|execute)\b`),
		regexp.MustCompile(`(?i)(--)|(#)|(/\*)|(\*/)|(\bor\b)|(\band\b)`),
		regexp.MustCompile(`(?i)\b(script|javascript|vbscript)\b`),
	},
	XSS: {
		regexp.MustCompile(`(?i)<script[^>]*>.*?</script>`),
		regexp.MustCompile(`(?i)javascript:`),
		regexp.MustCompile(`(?i)on\w+\s*=`),
		regexp.MustCompile(`(?i)<iframe[^>]*>`),
	},
	Command: {
		regexp.MustCompile(`(?i)\b(rm|del|format|shutdown|reboot|kill|ps|ls|dir|cat|type)\b`),
		regexp.MustCompile("[|&;`$(){}\\[\\]]"),
		regexp.MustCompile(`\.\./`),
		regexp.MustCompile(`/etc/|/proc/|/sys/`),
	},
	Path: {
		regexp.MustCompile(`\.\./|\.\.\\`),
		regexp.MustCompile(`^/|^[a-zA-Z]:\\`),
		regexp.MustCompile(`[<>:"|?*]`),
		regexp.MustCompile("\x00"),
	},
}

// Safe evalúa el input contra una clase. true = no matchea ningún patrón.
func Safe(input string, class Class) bool {
	for _, re := range patterns[class] {
		if re.MatchString(input) {
			return false
		}
	}
	return true
}

// Detect retorna las clases que matchean el input (vacío = limpio).
func Detect(input string, classes ...Class) []Class {
	if len(classes) == 0 {
		classes = Classes
	}
	var hits []Class
	for _, c := range classes {
		if !Safe(input, c) {
			hits = append(hits, c)
		}
	}
	return hits
}
