/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import "reflect"

// Config is implemented by objects that can read themselves from a DataProvider.
// SetProviderDefaults registers default values in the provider, Set reads and
// validates the final values. Loader calls the two in that order for every
// object it loads.
type Config interface {
	SetProviderDefaults(dp DataProvider)
	Set(dp DataProvider) error
}

// KeyPrefixProvider is implemented by configuration objects whose keys live
// under a common prefix. When the prefix is not empty, Loader and the Call*
// helpers address the object's keys relative to it.
type KeyPrefixProvider interface {
	KeyPrefix() string
}

// CallSetProviderDefaultsForFields calls SetProviderDefaults on every exported
// non-nil field of the passed object that implements the Config interface.
// Per-field key prefixes are respected. It lets composite configuration
// objects delegate to their sub-configs.
func CallSetProviderDefaultsForFields(obj interface{}, dp DataProvider) {
	_ = walkConfigFields(obj, dp, func(c Config, cDp DataProvider) error {
		c.SetProviderDefaults(cDp)
		return nil
	})
}

// CallSetForFields calls Set on every exported non-nil field of the passed
// object that implements the Config interface, stopping at the first error.
// Per-field key prefixes are respected.
func CallSetForFields(obj interface{}, dp DataProvider) error {
	return walkConfigFields(obj, dp, func(c Config, cDp DataProvider) error {
		return c.Set(cDp)
	})
}

func walkConfigFields(obj interface{}, dp DataProvider, fn func(c Config, dp DataProvider) error) error {
	el := reflect.ValueOf(obj).Elem()
	for i := 0; i < el.NumField(); i++ {
		if !el.Type().Field(i).IsExported() {
			continue
		}
		v := el.Field(i).Interface()
		if reflect.ValueOf(v).Kind() == reflect.Ptr && reflect.ValueOf(v).IsNil() {
			continue
		}
		c, ok := v.(Config)
		if !ok {
			continue
		}
		cDp := dp
		if kp, ok := v.(KeyPrefixProvider); ok && kp.KeyPrefix() != "" {
			cDp = NewKeyPrefixedDataProvider(dp, kp.KeyPrefix())
		}
		if err := fn(c, cDp); err != nil {
			return err
		}
	}
	return nil
}
