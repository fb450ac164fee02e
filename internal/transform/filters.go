package transform

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/osteele/liquid"
	"github.com/osteele/tuesday"
)

// newEngine returns a Liquid engine with the template filters available to
// template rules, in addition to Liquid's standard set.
func newEngine() *liquid.Engine {
	engine := liquid.NewEngine()
	engine.RegisterFilter("regex_replace", regexReplace)
	engine.RegisterFilter("to_datetime", toDatetime)
	engine.RegisterFilter("cast", cast)
	return engine
}

var regexCache sync.Map // pattern -> *regexp.Regexp

// regexReplace replaces every match of pattern. An invalid pattern returns
// the input.
func regexReplace(input, pattern, replacement string) string {
	var re *regexp.Regexp
	if cached, ok := regexCache.Load(pattern); ok {
		re = cached.(*regexp.Regexp)
	} else {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return input
		}
		regexCache.Store(pattern, compiled)
		re = compiled
	}
	return re.ReplaceAllString(input, replacement)
}

// toDatetime parses the input and renders it with a strftime format, or as
// ISO-8601 when no format is given. Unparseable input is returned unchanged.
func toDatetime(input any, format func(string) string) any {
	var t time.Time
	switch v := input.(type) {
	case time.Time:
		t = v
	case string:
		parsed, ok := parseTime(v)
		if !ok {
			return input
		}
		t = parsed
	default:
		return input
	}
	layout := format("")
	if layout == "" {
		return t.Format(time.RFC3339)
	}
	out, err := tuesday.Strftime(layout, t)
	if err != nil {
		return input
	}
	return out
}

// cast converts the input to integer, number, boolean or string.
func cast(input any, typ string) any {
	switch strings.ToLower(typ) {
	case "integer", "int":
		if v, ok := toInteger(input); ok {
			return v
		}
	case "number", "float":
		if v, ok := toNumber(input); ok {
			return v
		}
	case "boolean", "bool":
		if v, ok := toBoolean(input); ok {
			return v
		}
	case "string":
		if input == nil {
			return ""
		}
		return fmt.Sprint(input)
	}
	return input
}
