/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package designer

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"reportdesigner/internal/domain"
)

// Property names one mutable attribute of a field. Values match the JSON names.
type Property string

const (
	PropLabel     Property = "label"
	PropFontSize  Property = "fontSize"
	PropBold      Property = "bold"
	PropShowLabel Property = "showLabel"
)

var (
	ErrUnknownProperty = errors.New("unknown field property")
	ErrInvalidValue    = errors.New("invalid property value")
)

// EditableProperties lists the editable properties in inspector order.
func EditableProperties() []Property { return []Property{PropLabel, PropFontSize, PropBold, PropShowLabel} }

// ParseProperty accepts the JSON name in any case, plus "font-size" and "show-label".
func ParseProperty(s string) (Property, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "-", "")) {
	case "label":
		return PropLabel, nil
	case "fontsize":
		return PropFontSize, nil
	case "bold":
		return PropBold, nil
	case "showlabel":
		return PropShowLabel, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProperty, s)
}

// ParseValue converts textual input (CLI, form widgets) into the property's value type.
func ParseValue(p Property, s string) (any, error) {
	switch p {
	case PropLabel:
		return s, nil
	case PropFontSize:
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("%w: fontSize %q", ErrInvalidValue, s)
		}
		return n, nil
	case PropBold, PropShowLabel:
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("%w: %s %q", ErrInvalidValue, p, s)
		}
		return b, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProperty, string(p))
}

// apply sets p on f. f is left untouched when an error is returned.
func apply(f *domain.Field, p Property, value any) error {
	switch p {
	case PropLabel:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: label wants a string, got %T", ErrInvalidValue, value)
		}
		f.Label = s
	case PropFontSize:
		n, err := toFontSize(value)
		if err != nil {
			return err
		}
		f.FontSize = n
	case PropBold, PropShowLabel:
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%w: %s wants a bool, got %T", ErrInvalidValue, p, value)
		}
		if p == PropBold {
			f.Bold = b
		} else {
			f.ShowLabel = b
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProperty, string(p))
	}
	return nil
}

func toFontSize(value any) (int, error) {
	var n int64
	switch v := value.(type) {
	case int:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: fontSize %v is not an integer", ErrInvalidValue, v)
		}
		n = int64(v)
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: fontSize %q is not an integer", ErrInvalidValue, v.String())
		}
		n = i
	default:
		return 0, fmt.Errorf("%w: fontSize wants a number, got %T", ErrInvalidValue, value)
	}
	if n <= 0 || n > math.MaxInt32 {
		return 0, fmt.Errorf("%w: fontSize %d must be positive", ErrInvalidValue, n)
	}
	return int(n), nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
