package api

import (
	"context"

	"github.com/platinummonkey/noderegistry/pkg/descriptor"
	"github.com/platinummonkey/noderegistry/pkg/i18n"
	"github.com/platinummonkey/noderegistry/pkg/registry"
)

// Registry is the registry surface the admin API serves
type Registry interface {
	Load(ctx context.Context) error
	InstallModule(ctx context.Context, name string, opts registry.InstallOptions) (*descriptor.Module, error)
	UninstallModule(ctx context.Context, name string) error
	EnableNode(ctx context.Context, id string) (*descriptor.Unit, error)
	DisableNode(ctx context.Context, id string) (*descriptor.Unit, error)
	SetModuleEnabled(ctx context.Context, name string, enabled bool) (*descriptor.Module, error)

	ListModules() []*descriptor.Module
	GetModule(name string) (*descriptor.Module, error)
	ListUnits(preds ...registry.UnitPredicate) []*descriptor.Unit
	GetUnit(id string) (*descriptor.Unit, error)
	Rejected() []descriptor.Rejection
	GetType(name string) (*descriptor.TypeBinding, bool)
	Types() []string
	GetUnitConfig(id, lang string) (string, error)
	GetAllConfigs(lang string) string
	GetCatalog(namespace, lang string) (i18n.Messages, string, bool)
	GetModuleIcons(name string) ([]descriptor.IconDir, error)
	GetModuleExamples(name string) (string, error)
	GetModuleResource(name, rel string) (string, error)
	GetIcon(name, icon string) (string, error)
}

// ModuleInfo is the wire form of a module
type ModuleInfo struct {
	*descriptor.Module
	Err string `json:"err,omitempty"`
}

func moduleInfo(m *descriptor.Module) ModuleInfo {
	info := ModuleInfo{Module: m}
	if m.Err != nil {
		info.Err = descriptor.Code(m.Err)
	}
	return info
}

// TypeInfo is the wire form of a type binding
type TypeInfo struct {
	Type    string                 `json:"type"`
	Unit    string                 `json:"unit"`
	Kind    descriptor.Kind        `json:"kind"`
	Options descriptor.TypeOptions `json:"options,omitempty"`
}

// RejectionInfo is the wire form of a rejected module
type RejectionInfo struct {
	Module  string `json:"module"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// InstallRequest is the body of POST /nodes
type InstallRequest struct {
	Module  string `json:"module"`
	Version string `json:"version,omitempty"`
	Path    string `json:"path,omitempty"`
}

// EnableRequest is the body of PUT on a module or unit
type EnableRequest struct {
	Enabled *bool `json:"enabled"`
}

// CatalogResponse is a namespace's messages in the language served
type CatalogResponse struct {
	Namespace string        `json:"namespace"`
	Lang      string        `json:"lang"`
	Messages  i18n.Messages `json:"messages"`
}

// ExamplesResponse lists the example flows a module ships
type ExamplesResponse struct {
	Module   string   `json:"module"`
	Examples []string `json:"examples"`
}
