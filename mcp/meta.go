// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import "reflect"

// Meta carries the protocol's reserved "_meta" field, present on every
// params and result type. It is opaque key/value data that travels with a
// request independent of its typed payload; the only key the client core
// interprets itself is "progressToken".
type Meta map[string]any

const progressTokenKey = "progressToken"

// metaOf returns the Meta embedded in v, or nil if v has no such field. v may
// be a struct value or a pointer to one.
func metaOf(v any) Meta {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}
	f := rv.FieldByName("Meta")
	if !f.IsValid() {
		return nil
	}
	m, _ := f.Interface().(Meta)
	return m
}

// getProgressToken reports the progress token attached to v's params, or nil
// if none was set.
func getProgressToken(v any) any {
	m := metaOf(v)
	if m == nil {
		return nil
	}
	return m[progressTokenKey]
}

// setProgressToken attaches token to v's embedded Meta field, allocating the
// map if necessary. v must be a pointer to a struct with an embedded Meta
// field; any other shape is a silent no-op, since callers only invoke this
// through the generated SetProgressToken methods on concrete params types.
func setProgressToken(v any, token any) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return
	}
	elem := rv.Elem()
	if elem.Kind() != reflect.Struct {
		return
	}
	f := elem.FieldByName("Meta")
	if !f.IsValid() || !f.CanSet() {
		return
	}
	m, _ := f.Interface().(Meta)
	if m == nil {
		m = Meta{}
	}
	m[progressTokenKey] = token
	f.Set(reflect.ValueOf(m))
}
