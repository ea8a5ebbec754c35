package routing

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ohler55/ojg/jp"

	"github.com/eventgatehq/eventgate-backend/internal/transform"
	"github.com/eventgatehq/eventgate-backend/pkg/enums"
)

// Condition gates a route. Evaluation is pure and never touches host code.
type Condition interface {
	Evaluate(event transform.Event) bool
}

// ParseCondition compiles the stored condition document. A nil or empty
// document means the route is ungated.
func ParseCondition(raw map[string]any) (Condition, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	typeName, _ := raw["type"].(string)
	condType, err := enums.ParseConditionType(typeName)
	if err != nil {
		return nil, err
	}

	switch condType {
	case enums.ConditionTypeProperty:
		return parsePropertyCondition(raw)
	case enums.ConditionTypeJSONPath:
		return parseJSONPathCondition(raw)
	case enums.ConditionTypeScript:
		return parseScriptCondition(raw)
	default:
		return nil, fmt.Errorf("invalid condition type %q", typeName)
	}
}

type propertyCondition struct {
	property string
	operator string
	value    any
}

var propertyOperators = map[string]bool{
	"equals":      true,
	"contains":    true,
	"startsWith":  true,
	"endsWith":    true,
	"greaterThan": true,
	"lessThan":    true,
	"in":          true,
	"exists":      true,
}

func parsePropertyCondition(raw map[string]any) (Condition, error) {
	property, _ := raw["property"].(string)
	if property == "" {
		return nil, errors.New("property condition requires a property path")
	}
	operator, _ := raw["operator"].(string)
	if !propertyOperators[operator] {
		return nil, fmt.Errorf("invalid property operator %q", operator)
	}
	return &propertyCondition{property: property, operator: operator, value: raw["value"]}, nil
}

func (c *propertyCondition) Evaluate(event transform.Event) bool {
	resolved, ok := transform.GetPath(event.Map(), c.property)

	switch c.operator {
	case "exists":
		return ok
	case "equals":
		return ok && transform.Equal(resolved, c.value)
	case "contains":
		if !ok {
			return false
		}
		return containsValue(resolved, c.value)
	case "startsWith":
		str, sok := resolved.(string)
		prefix, pok := c.value.(string)
		return ok && sok && pok && strings.HasPrefix(str, prefix)
	case "endsWith":
		str, sok := resolved.(string)
		suffix, vok := c.value.(string)
		return ok && sok && vok && strings.HasSuffix(str, suffix)
	case "greaterThan":
		return ok && compareValues(resolved, c.value) > 0
	case "lessThan":
		return ok && compareValues(resolved, c.value) < 0
	case "in":
		list, lok := c.value.([]any)
		if !ok || !lok {
			return false
		}
		for _, item := range list {
			if transform.Equal(resolved, item) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

type jsonPathCondition struct {
	expr     jp.Expr
	operator string
	value    any
}

var jsonPathOperators = map[string]bool{
	"equals":      true,
	"contains":    true,
	"exists":      true,
	"count":       true,
	"greaterThan": true,
	"lessThan":    true,
}

func parseJSONPathCondition(raw map[string]any) (Condition, error) {
	path, _ := raw["path"].(string)
	if path == "" {
		return nil, errors.New("jsonpath condition requires a path")
	}
	expr, err := jp.ParseString(path)
	if err != nil {
		return nil, fmt.Errorf("parsing jsonpath condition: %w", err)
	}
	operator, _ := raw["operator"].(string)
	if !jsonPathOperators[operator] {
		return nil, fmt.Errorf("invalid jsonpath operator %q", operator)
	}
	return &jsonPathCondition{expr: expr, operator: operator, value: raw["value"]}, nil
}

func (c *jsonPathCondition) Evaluate(event transform.Event) bool {
	results := c.expr.Get(event.Map())

	switch c.operator {
	case "exists":
		return len(results) > 0
	case "equals":
		return len(results) == 1 && transform.Equal(results[0], c.value)
	case "contains":
		return len(results) == 1 && containsValue(results[0], c.value)
	case "count":
		want, ok := numeric(c.value)
		return ok && float64(len(results)) == want
	case "greaterThan":
		return len(results) == 1 && compareValues(results[0], c.value) > 0
	case "lessThan":
		return len(results) == 1 && compareValues(results[0], c.value) < 0
	default:
		return false
	}
}

type scriptCondition struct {
	root scriptNode
}

type scriptNode struct {
	op       string
	children []scriptNode
	child    *scriptNode
	path     string
	value    any
	pattern  *regexp.Regexp
}

// parseScriptCondition accepts the expression as a JSON-encoded string or an
// already-decoded object.
func parseScriptCondition(raw map[string]any) (Condition, error) {
	var doc map[string]any
	switch v := raw["script"].(type) {
	case string:
		if err := json.Unmarshal([]byte(v), &doc); err != nil {
			return nil, fmt.Errorf("parsing script condition: %w", err)
		}
	case map[string]any:
		doc = v
	default:
		return nil, errors.New("script condition requires a script expression")
	}

	root, err := parseScriptNode(doc)
	if err != nil {
		return nil, err
	}
	return &scriptCondition{root: root}, nil
}

func parseScriptNode(doc map[string]any) (scriptNode, error) {
	op, _ := doc["op"].(string)

	switch op {
	case "and", "or":
		rawKids, ok := doc["conditions"].([]any)
		if !ok || len(rawKids) == 0 {
			return scriptNode{}, fmt.Errorf("script %q requires conditions", op)
		}
		node := scriptNode{op: op, children: make([]scriptNode, 0, len(rawKids))}
		for _, rawKid := range rawKids {
			kidDoc, ok := rawKid.(map[string]any)
			if !ok {
				return scriptNode{}, fmt.Errorf("script %q conditions must be objects", op)
			}
			kid, err := parseScriptNode(kidDoc)
			if err != nil {
				return scriptNode{}, err
			}
			node.children = append(node.children, kid)
		}
		return node, nil
	case "not":
		kidDoc, ok := doc["condition"].(map[string]any)
		if !ok {
			return scriptNode{}, errors.New(`script "not" requires a condition`)
		}
		kid, err := parseScriptNode(kidDoc)
		if err != nil {
			return scriptNode{}, err
		}
		return scriptNode{op: op, child: &kid}, nil
	case "equals", "contains", "gt", "lt":
		path, _ := doc["path"].(string)
		if path == "" {
			return scriptNode{}, fmt.Errorf("script %q requires a path", op)
		}
		return scriptNode{op: op, path: path, value: doc["value"]}, nil
	case "regex":
		path, _ := doc["path"].(string)
		if path == "" {
			return scriptNode{}, errors.New(`script "regex" requires a path`)
		}
		rawPattern, _ := doc["pattern"].(string)
		if rawPattern == "" {
			return scriptNode{}, errors.New(`script "regex" requires a pattern`)
		}
		flags, _ := doc["flags"].(string)
		pattern, err := compileLiteralPattern(rawPattern, flags)
		if err != nil {
			return scriptNode{}, err
		}
		return scriptNode{op: op, path: path, pattern: pattern}, nil
	default:
		// Unknown operators parse fine and evaluate to false.
		return scriptNode{op: op}, nil
	}
}

// compileLiteralPattern quotes every metacharacter so the pattern matches as
// a literal substring; only the case/multiline/dotall flags survive.
func compileLiteralPattern(pattern, flags string) (*regexp.Regexp, error) {
	var prefix strings.Builder
	for _, flag := range flags {
		switch flag {
		case 'i', 'm', 's':
			prefix.WriteRune(flag)
		default:
			return nil, fmt.Errorf("invalid regex flag %q", string(flag))
		}
	}
	quoted := regexp.QuoteMeta(pattern)
	if prefix.Len() > 0 {
		quoted = "(?" + prefix.String() + ")" + quoted
	}
	return regexp.Compile(quoted)
}

func (c *scriptCondition) Evaluate(event transform.Event) bool {
	return evalScriptNode(c.root, event.Map())
}

func evalScriptNode(node scriptNode, data map[string]any) bool {
	switch node.op {
	case "and":
		for _, kid := range node.children {
			if !evalScriptNode(kid, data) {
				return false
			}
		}
		return true
	case "or":
		for _, kid := range node.children {
			if evalScriptNode(kid, data) {
				return true
			}
		}
		return false
	case "not":
		return node.child != nil && !evalScriptNode(*node.child, data)
	case "equals":
		resolved, ok := transform.GetPath(data, node.path)
		return ok && transform.Equal(resolved, node.value)
	case "contains":
		resolved, ok := transform.GetPath(data, node.path)
		return ok && containsValue(resolved, node.value)
	case "gt":
		resolved, ok := transform.GetPath(data, node.path)
		return ok && compareValues(resolved, node.value) > 0
	case "lt":
		resolved, ok := transform.GetPath(data, node.path)
		return ok && compareValues(resolved, node.value) < 0
	case "regex":
		resolved, ok := transform.GetPath(data, node.path)
		if !ok {
			return false
		}
		str, sok := resolved.(string)
		return sok && node.pattern.MatchString(str)
	default:
		return false
	}
}

// containsValue mirrors substring checks for strings and element membership
// for arrays.
func containsValue(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		n, ok := needle.(string)
		return ok && strings.Contains(h, n)
	case []any:
		for _, item := range h {
			if transform.Equal(item, needle) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// compareValues orders two values: numerically when both are numbers,
// otherwise by their string forms. Equal inputs return 0.
func compareValues(a, b any) int {
	na, aok := numeric(a)
	nb, bok := numeric(b)
	if aok && bok {
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
