/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package access

import (
	"strings"

	"github.com/sabouaram/vaultmesh/errs"
	"gopkg.in/ini.v1"
)

// Load reads the access-policy file at path: [role:<name>] sections
// defining SUBSCRIBE/PUBLISH/SET lists, and a [map] section of ordered
// identity-pattern = role-name lines.
//
// The [map] section's ordering is load-bearing (first match wins), so
// this loads with gopkg.in/ini.v1 directly rather than through Viper:
// Viper flattens a config file into a single settings map, which does
// not preserve key order within a section the way ini.v1's
// Section.Keys() does.
func Load(path string) (Table, error) {
	f, err := ini.LoadSources(ini.LoadOptions{}, path)
	if err != nil {
		return nil, errs.Wrap(errs.KindProtocol, err, "load access policy %q", path)
	}

	t := &table{roles: make(map[string]Role)}

	for _, sec := range f.Sections() {
		name := sec.Name()
		switch {
		case strings.HasPrefix(name, "role:"):
			role := parseRole(strings.TrimPrefix(name, "role:"), sec)
			t.roles[role.Name] = role
		case name == "map":
			for _, key := range sec.Keys() {
				t.mappings = append(t.mappings, mapping{
					pattern: strings.TrimSpace(key.Name()),
					role:    strings.TrimSpace(key.Value()),
				})
			}
		}
	}

	return t, nil
}

func parseRole(name string, sec *ini.Section) Role {
	return Role{
		Name:      name,
		Subscribe: parseVerbRule(sec.Key("SUBSCRIBE").Value()),
		Publish:   parseVerbRule(sec.Key("PUBLISH").Value()),
		Set:       parseVerbRule(sec.Key("SET").Value()),
	}
}

func parseVerbRule(raw string) verbRule {
	var rule verbRule
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if item == "*" {
			rule.wildcard = true
			continue
		}
		rule.items = append(rule.items, item)
	}
	return rule
}
