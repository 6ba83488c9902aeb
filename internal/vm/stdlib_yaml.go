package vm

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/fizzlang/fizz/internal/types"
)

// The Yaml module exposes flat key/value documents to scripts. Nested
// structure is out of reach of the type system without a dynamic value
// type, so parse flattens scalar mappings and stringify emits them back.
func installYaml(reg *Registry) {
	pair := &types.TTuple{Elems: []types.Type{types.Str, types.Str}}

	reg.RegisterTyped("Yaml.parse", 1, mono(arrow(types.Str, list(pair))),
		func(m *VM, args []Value) (Value, error) {
			src, err := strArg(m, "Yaml.parse", args[0])
			if err != nil {
				return Unit, err
			}
			doc := map[string]interface{}{}
			if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
				return Unit, fmt.Errorf("Yaml.parse: %w", err)
			}
			keys := make([]string, 0, len(doc))
			for k := range doc {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			pairs := make([]Value, 0, len(doc))
			pinned := 0
			for _, k := range keys {
				kv := m.heap.AllocStr(k)
				m.heap.Pin(kv)
				vv := m.heap.AllocStr(fmt.Sprintf("%v", doc[k]))
				m.heap.Pin(vv)
				tup := m.heap.AllocTuple([]Value{kv, vv})
				m.heap.Unpin(2)
				m.heap.Pin(tup)
				pinned++
				pairs = append(pairs, tup)
			}
			out := MakeListValue(m.heap, pairs)
			m.heap.Unpin(pinned)
			return out, nil
		})

	reg.RegisterTyped("Yaml.stringify", 1, mono(arrow(list(pair), types.Str)),
		func(m *VM, args []Value) (Value, error) {
			pairs, err := ListValues(m.heap, args[0])
			if err != nil {
				return Unit, fmt.Errorf("Yaml.stringify: %w", err)
			}
			// A yaml.Node mapping keeps the pairs in script order.
			doc := &yaml.Node{Kind: yaml.MappingNode}
			for _, p := range pairs {
				if p.Kind != ValTuple {
					return Unit, fmt.Errorf("Yaml.stringify: expected (string * string) elements, found %s", p.Kind)
				}
				tup := m.heap.Tuple(p.Handle())
				if len(tup.Elems) != 2 || tup.Elems[0].Kind != ValStr || tup.Elems[1].Kind != ValStr {
					return Unit, fmt.Errorf("Yaml.stringify: expected (string * string) elements")
				}
				doc.Content = append(doc.Content,
					&yaml.Node{Kind: yaml.ScalarNode, Value: m.heap.Str(tup.Elems[0].Handle())},
					&yaml.Node{Kind: yaml.ScalarNode, Value: m.heap.Str(tup.Elems[1].Handle())},
				)
			}
			raw, err := yaml.Marshal(doc)
			if err != nil {
				return Unit, fmt.Errorf("Yaml.stringify: %w", err)
			}
			return m.heap.AllocStr(string(raw)), nil
		})
}
