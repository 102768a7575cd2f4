package loader

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/noderegistry/pkg/descriptor"
	"github.com/platinummonkey/noderegistry/pkg/i18n"
)

// RegistrationAPI is the registry surface a load pass writes to
type RegistrationAPI interface {
	RegisterType(unitID string, kind descriptor.Kind, typeName string, ctor descriptor.Constructor, opts descriptor.TypeOptions) error
	RemoveUnitTypes(unitID string)
}

// RED is the capability handed to a unit implementation while it loads
type RED struct {
	unit    *descriptor.Unit
	api     RegistrationAPI
	catalog *i18n.Catalog
	log     *logrus.Entry

	mu         sync.Mutex
	registered []string
	conflict   error
}

func newRED(unit *descriptor.Unit, api RegistrationAPI, catalog *i18n.Catalog, log *logrus.Entry) *RED {
	return &RED{
		unit:    unit,
		api:     api,
		catalog: catalog,
		log:     log,
	}
}

// UnitID returns the id of the unit being loaded
func (r *RED) UnitID() string {
	return r.unit.ID
}

// Module returns the name of the module the unit belongs to
func (r *RED) Module() string {
	return r.unit.Module
}

// Log returns a logger scoped to the unit
func (r *RED) Log() *logrus.Entry {
	return r.log
}

// RegisterType binds typeName to ctor for this unit. A name already bound to
// another enabled unit fails with descriptor.ErrTypeAlreadyRegistered, and
// the unit is marked as errored even if the implementation ignores it.
func (r *RED) RegisterType(typeName string, ctor descriptor.Constructor, opts descriptor.TypeOptions) error {
	if typeName == "" {
		return fmt.Errorf("%w: empty type name", descriptor.ErrLoadFailed)
	}
	if ctor == nil {
		return fmt.Errorf("%w: nil constructor for %s", descriptor.ErrLoadFailed, typeName)
	}

	err := r.api.RegisterType(r.unit.ID, r.unit.Kind, typeName, ctor, opts)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		if r.conflict == nil {
			r.conflict = err
		}
		return err
	}
	r.registered = append(r.registered, typeName)
	return nil
}

// Translate looks up a dotted key in the unit's catalog for the default
// language. Unknown keys are returned unchanged.
func (r *RED) Translate(key string) string {
	if r.catalog == nil {
		return key
	}
	msgs, _, ok := r.catalog.Lookup(r.unit.Namespace, r.catalog.DefaultLang())
	if !ok {
		return key
	}

	var cur interface{} = map[string]interface{}(msgs)
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return key
		}
		if cur, ok = m[part]; !ok {
			return key
		}
	}
	if s, ok := cur.(string); ok {
		return s
	}
	return key
}

func (r *RED) registeredTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.registered...)
}

func (r *RED) conflictErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conflict
}
