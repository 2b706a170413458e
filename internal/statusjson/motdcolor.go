package statusjson

import "strings"

// legacyColorNames maps the Minecraft formatting codes (section-sign
// prefixed) to the chat component color names the status Response JSON
// expects.
var legacyColorNames = map[rune]string{
	'0': "black", '1': "dark_blue", '2': "dark_green", '3': "dark_aqua",
	'4': "dark_red", '5': "dark_purple", '6': "gold", '7': "gray",
	'8': "dark_gray", '9': "blue", 'a': "green", 'b': "aqua",
	'c': "red", 'd': "light_purple", 'e': "yellow", 'f': "white",
}

// descriptionComponent converts a MOTD string containing legacy "§"
// formatting codes into a chat component tree. Plain strings with no
// codes or escaped newlines short-circuit to a single {"text": ...}.
func descriptionComponent(input string) map[string]any {
	if !strings.Contains(input, "§") && !strings.Contains(input, "\\n") {
		return map[string]any{"text": input}
	}

	input = strings.ReplaceAll(input, "\\n", "\n")

	var (
		result                                                       []map[string]any
		cur                                                          strings.Builder
		color                                                        string
		bold, italic, underlined, strikethrough, obfuscated, didTail bool
	)

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		c := map[string]any{"text": cur.String()}
		if color != "" {
			c["color"] = color
		}
		if bold {
			c["bold"] = true
		}
		if italic {
			c["italic"] = true
		}
		if underlined {
			c["underlined"] = true
		}
		if strikethrough {
			c["strikethrough"] = true
		}
		if obfuscated {
			c["obfuscated"] = true
		}
		if didTail {
			c["bold"], c["italic"], c["underlined"], c["strikethrough"], c["obfuscated"] = false, false, false, false, false
			didTail = false
		}
		result = append(result, c)
		cur.Reset()
	}

	runes := []rune(input)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '§' && i+1 < len(runes):
			flush()
			code := runes[i+1]
			i++
			switch code {
			case 'r':
				color, bold, italic, underlined, strikethrough, obfuscated = "", false, false, false, false, false
				didTail = true
			case 'l':
				bold = true
			case 'o':
				italic = true
			case 'n':
				underlined = true
			case 'm':
				strikethrough = true
			case 'k':
				obfuscated = true
			default:
				if name, ok := legacyColorNames[code]; ok {
					color = name
					bold, italic, underlined, strikethrough, obfuscated = false, false, false, false, false
				}
			}
		case r == '\n':
			flush()
			result = append(result, map[string]any{"text": "\n"})
		default:
			cur.WriteRune(r)
		}
	}
	flush()

	switch len(result) {
	case 0:
		return map[string]any{"text": ""}
	case 1:
		return result[0]
	default:
		first := result[0]
		if _, ok := first["text"]; !ok {
			first["text"] = ""
		}
		first["extra"] = result[1:]
		return first
	}
}
