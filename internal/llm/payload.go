package llm

import (
	"encoding/json"
	"strings"
)

// FirstJSONObject 在模型回复中找到第一个格式正确的 JSON 对象。
//
// 回复可能包含说明文字、``` 代码块、// # /* */ 注释、单引号键值和尾逗号，
// 这些都会在解析前被规整；从每个 '{' 开始尝试，第一个能通过 json.Valid 的对象胜出。
func FirstJSONObject(text string) (json.RawMessage, bool) {
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		obj, ok := scanObject(text, i)
		if !ok {
			continue
		}
		if json.Valid([]byte(obj)) {
			return json.RawMessage(obj), true
		}
	}
	return nil, false
}

// DecodeFirstJSON 解析第一个 JSON 对象到 v，失败返回 false。
func DecodeFirstJSON(text string, v any) bool {
	raw, ok := FirstJSONObject(text)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

// scanObject 从 start 处的 '{' 开始扫描到与之匹配的 '}'，同时去掉注释、
// 把单引号字符串改写为双引号、删除尾逗号。括号不配对时返回 false。
func scanObject(text string, start int) (string, bool) {
	var out []byte
	depth := 0
	n := len(text)
	for i := start; i < n; i++ {
		c := text[i]
		switch {
		case c == '"':
			end, ok := copyDoubleQuoted(text, i, &out)
			if !ok {
				return "", false
			}
			i = end
		case c == '\'':
			end, ok := copySingleQuoted(text, i, &out)
			if !ok {
				return "", false
			}
			i = end
		case c == '/' && i+1 < n && text[i+1] == '/', c == '#':
			for i < n && text[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < n && text[i+1] == '*':
			end := strings.Index(text[i+2:], "*/")
			if end < 0 {
				return "", false
			}
			i += 2 + end + 1
		case c == '{' || c == '[':
			depth++
			out = append(out, c)
		case c == '}' || c == ']':
			out = trimTrailingComma(out)
			out = append(out, c)
			depth--
			if depth == 0 {
				return string(out), true
			}
		default:
			out = append(out, c)
		}
	}
	return "", false
}

func copyDoubleQuoted(text string, i int, out *[]byte) (int, bool) {
	*out = append(*out, '"')
	for j := i + 1; j < len(text); j++ {
		c := text[j]
		if c == '\\' && j+1 < len(text) {
			*out = append(*out, c, text[j+1])
			j++
			continue
		}
		if c == '\n' {
			*out = append(*out, '\\', 'n')
			continue
		}
		*out = append(*out, c)
		if c == '"' {
			return j, true
		}
	}
	return 0, false
}

func copySingleQuoted(text string, i int, out *[]byte) (int, bool) {
	*out = append(*out, '"')
	for j := i + 1; j < len(text); j++ {
		c := text[j]
		switch {
		case c == '\\' && j+1 < len(text):
			if text[j+1] == '\'' {
				*out = append(*out, '\'')
			} else {
				*out = append(*out, c, text[j+1])
			}
			j++
		case c == '"':
			*out = append(*out, '\\', '"')
		case c == '\'':
			*out = append(*out, '"')
			return j, true
		case c == '\n':
			return 0, false
		default:
			*out = append(*out, c)
		}
	}
	return 0, false
}

func trimTrailingComma(out []byte) []byte {
	j := len(out) - 1
	for j >= 0 && (out[j] == ' ' || out[j] == '\t' || out[j] == '\n' || out[j] == '\r') {
		j--
	}
	if j >= 0 && out[j] == ',' {
		return append(out[:j], out[j+1:]...)
	}
	return out
}
