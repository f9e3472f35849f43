package cmdutil

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/storemill/storemill/src/internal/errors"
)

const (
	cannotParseErr              = "cannot parse"
	envKeyNotSetWhenRequiredErr = "env key not set when required"
	expectedPointerErr          = "expected pointer"
	expectedStructErr           = "expected struct"
	fieldTypeNotAllowedErr      = "field type not allowed"
	invalidTagErr               = "invalid tag, must be KEY,{required},{default=DEFAULT_VALUE}"
)

// Populate populates an object with environment variables, driven by `env`
// struct tags of the form `env:"KEY"`, `env:"KEY,required"` or
// `env:"KEY,default=VALUE"`.  Nested structs are populated recursively.
func Populate(object interface{}) error {
	return populateInternal(reflect.ValueOf(object), false)
}

// PopulateDefaults parses the tags of the given structure and populates each
// field with its default value (if one is specified in the tags).  This is
// meant for use by tests, which do not want to read from env vars.
func PopulateDefaults(object interface{}) error {
	return populateDefaultsInternal(reflect.ValueOf(object), false)
}

func populateInternal(reflectValue reflect.Value, recursive bool) error {
	if reflectValue.Type().Kind() == reflect.Ptr {
		reflectValue = reflectValue.Elem()
	} else if !recursive {
		return errors.Errorf("%s: %v", expectedPointerErr, reflectValue.Type())
	}
	if reflectValue.Type().Kind() != reflect.Struct {
		return errors.Errorf("%s: %v", expectedStructErr, reflectValue.Type())
	}
	for i := 0; i < reflectValue.NumField(); i++ {
		structField := reflectValue.Type().Field(i)
		ptrToStruct := structField.Type.Kind() == reflect.Ptr && structField.Type.Elem().Kind() == reflect.Struct
		if structField.Type.Kind() == reflect.Struct || ptrToStruct {
			if err := populateInternal(reflectValue.Field(i), true); err != nil {
				return err
			}
			continue
		}
		tag, err := getEnvTag(structField)
		if err != nil {
			return err
		}
		if tag == nil {
			continue
		}
		value := os.Getenv(tag.key)
		if value == "" {
			value = tag.defaultValue
		}
		if value == "" {
			if tag.required {
				return errors.Errorf("%s: %s %v", envKeyNotSetWhenRequiredErr, tag.key, reflectValue.Type())
			}
			continue
		}
		parsedValue, err := parseField(structField, value)
		if err != nil {
			return err
		}
		reflectValue.Field(i).Set(reflect.ValueOf(parsedValue))
	}
	return nil
}

func populateDefaultsInternal(reflectValue reflect.Value, recursive bool) error {
	if reflectValue.Type().Kind() == reflect.Ptr {
		reflectValue = reflectValue.Elem()
	} else if !recursive {
		return errors.Errorf("%s: %v", expectedPointerErr, reflectValue.Type())
	}
	if reflectValue.Type().Kind() != reflect.Struct {
		return errors.Errorf("%s: %v", expectedStructErr, reflectValue.Type())
	}
	for i := 0; i < reflectValue.NumField(); i++ {
		structField := reflectValue.Type().Field(i)
		ptrToStruct := structField.Type.Kind() == reflect.Ptr && structField.Type.Elem().Kind() == reflect.Struct
		if structField.Type.Kind() == reflect.Struct || ptrToStruct {
			if err := populateDefaultsInternal(reflectValue.Field(i), true); err != nil {
				return err
			}
			continue
		}
		tag, err := getEnvTag(structField)
		if err != nil {
			return err
		}
		if tag == nil || tag.defaultValue == "" {
			continue
		}
		parsedValue, err := parseField(structField, tag.defaultValue)
		if err != nil {
			return err
		}
		reflectValue.Field(i).Set(reflect.ValueOf(parsedValue))
	}
	return nil
}

type envTag struct {
	key          string
	required     bool
	defaultValue string
}

func getEnvTag(structField reflect.StructField) (*envTag, error) {
	tag := structField.Tag.Get("env")
	if tag == "" {
		return nil, nil
	}
	split := strings.SplitN(tag, ",", 2)
	envTag := &envTag{
		key: split[0],
	}
	if len(split) == 1 {
		return envTag, nil
	}
	split = strings.SplitN(strings.TrimSpace(split[1]), "=", 2)
	switch split[0] {
	case "required":
		envTag.required = true
	case "default":
		if len(split) != 2 {
			return nil, errors.Errorf("%s: %s", invalidTagErr, tag)
		}
		envTag.defaultValue = split[1]
	default:
		return nil, errors.Errorf("%s: %s", invalidTagErr, tag)
	}
	return envTag, nil
}

func parseField(structField reflect.StructField, value string) (interface{}, error) {
	switch structField.Type {
	case reflect.TypeOf(time.Duration(0)):
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, errors.Wrapf(err, "%s %s as duration", cannotParseErr, value)
		}
		return d, nil
	}
	switch structField.Type.Kind() {
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, errors.Wrapf(err, "%s %s as bool", cannotParseErr, value)
		}
		return b, nil
	case reflect.String:
		return value, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(value, 10, structField.Type.Bits())
		if err != nil {
			return nil, errors.Wrapf(err, "%s %s as int", cannotParseErr, value)
		}
		return reflect.ValueOf(i).Convert(structField.Type).Interface(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, structField.Type.Bits())
		if err != nil {
			return nil, errors.Wrapf(err, "%s %s as uint", cannotParseErr, value)
		}
		return reflect.ValueOf(u).Convert(structField.Type).Interface(), nil
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, structField.Type.Bits())
		if err != nil {
			return nil, errors.Wrapf(err, "%s %s as float", cannotParseErr, value)
		}
		return reflect.ValueOf(f).Convert(structField.Type).Interface(), nil
	}
	return nil, errors.Errorf("%s: %v", fieldTypeNotAllowedErr, structField.Type.Kind())
}
