package scripting

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ParamType is the declared type of a script parameter.
type ParamType string

const (
	ParamBool   ParamType = "bool"
	ParamString ParamType = "string"
	ParamInt    ParamType = "int"
)

// Param is one @param declaration.
type Param struct {
	Name        string
	Type        ParamType
	Description string
}

// Script is a parsed flow script.
type Script struct {
	Name        string
	Description string
	Author      string
	Revision    int
	Params      []Param
	Outputs     []string
	Code        string
}

var (
	ErrNoCommentBlock = errors.New("script must start with a comment block describing the script")
	ErrNoAnnotations  = errors.New("no comment parameters found")

	commentBlock = regexp.MustCompile(`(?s)/\*\*?(.*?)\*/`)
	leadingStars = regexp.MustCompile(`^\s*\*+\s?`)
	paramLine    = regexp.MustCompile(`^@param\s+\{([^}]+)\}\s+(\w+)\s*(.*)$`)
)

// Parse reads the annotation block and code of a script.
func Parse(name, code string) (*Script, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.New("no script found")
	}
	loc := commentBlock.FindStringSubmatchIndex(code)
	if loc == nil {
		return nil, ErrNoCommentBlock
	}
	body := code[loc[2]:loc[3]]
	rest := strings.TrimSpace(code[:loc[0]] + code[loc[1]:])

	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(leadingStars.ReplaceAllString(line, ""))
	}
	comments := strings.TrimSpace(strings.Join(lines, "\n"))
	at := strings.IndexByte(comments, '@')
	if at < 0 {
		return nil, ErrNoAnnotations
	}

	s := &Script{Name: name, Description: strings.TrimSpace(comments[:at]), Code: rest}
	for _, line := range strings.Split(comments[at:], "\n") {
		if err := s.annotate(line); err != nil {
			return nil, fmt.Errorf("script %s: %w", name, err)
		}
	}
	return s, nil
}

func (s *Script) annotate(line string) error {
	if m := paramLine.FindStringSubmatch(line); m != nil {
		typ := ParamType(strings.ToLower(strings.TrimSpace(m[1])))
		switch typ {
		case ParamBool, ParamString, ParamInt:
		default:
			return fmt.Errorf("invalid parameter type: %s", m[1])
		}
		s.Params = append(s.Params, Param{Name: m[2], Type: typ, Description: strings.TrimSpace(m[3])})
		return nil
	}
	keyword, value, _ := strings.Cut(line, " ")
	value = strings.TrimSpace(value)
	switch keyword {
	case "@output":
		s.Outputs = append(s.Outputs, value)
	case "@outputs":
		if n, err := strconv.Atoi(value); err == nil {
			for i := 1; i <= n; i++ {
				s.Outputs = append(s.Outputs, fmt.Sprintf("Output %d", i))
			}
		}
	case "@name":
		s.Name = value
	case "@description":
		s.Description = value
	case "@author":
		s.Author = value
	case "@revision":
		if n, err := strconv.Atoi(value); err == nil {
			s.Revision = n
		}
	default:
		if !strings.HasPrefix(line, "@") && line != "" {
			if s.Description == "" {
				s.Description = line
			} else {
				s.Description += "\n" + line
			}
		}
	}
	return nil
}
