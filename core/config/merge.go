package config

import (
	"reflect"
)

// DeepMerge overlays src onto dst. Both must be pointers to values of the same
// type. Non-zero scalars in src win, non-empty slices replace, maps merge key
// by key and structs merge field by field. Unexported fields are skipped.
func DeepMerge(dst, src any) {
	dstVal := reflect.ValueOf(dst)
	srcVal := reflect.ValueOf(src)

	if dstVal.Kind() != reflect.Ptr || srcVal.Kind() != reflect.Ptr {
		return
	}
	if dstVal.IsNil() || srcVal.IsNil() || dstVal.Type() != srcVal.Type() {
		return
	}

	overlay(dstVal.Elem(), srcVal.Elem())
}

func overlay(dst, src reflect.Value) {
	if !dst.CanSet() || !src.IsValid() {
		return
	}

	switch dst.Kind() {
	case reflect.Struct:
		for i := 0; i < dst.NumField(); i++ {
			overlay(dst.Field(i), src.Field(i))
		}
	case reflect.Map:
		overlayMap(dst, src)
	case reflect.Slice:
		if src.Len() > 0 {
			dst.Set(src)
		}
	default:
		if !src.IsZero() {
			dst.Set(src)
		}
	}
}

func overlayMap(dst, src reflect.Value) {
	if src.IsNil() {
		return
	}
	if dst.IsNil() {
		dst.Set(reflect.MakeMap(dst.Type()))
	}

	for _, key := range src.MapKeys() {
		srcVal := src.MapIndex(key)
		dstVal := dst.MapIndex(key)

		if !dstVal.IsValid() {
			dst.SetMapIndex(key, srcVal)
			continue
		}

		// Map values are not addressable; merge through a copy.
		switch srcVal.Kind() {
		case reflect.Map, reflect.Struct:
			merged := reflect.New(dstVal.Type()).Elem()
			merged.Set(dstVal)
			overlay(merged, srcVal)
			dst.SetMapIndex(key, merged)
		default:
			dst.SetMapIndex(key, srcVal)
		}
	}
}
