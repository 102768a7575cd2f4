package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/platinummonkey/noderegistry/pkg/descriptor"
	"github.com/platinummonkey/noderegistry/pkg/httputil"
	"github.com/platinummonkey/noderegistry/pkg/registry"
)

// listModules handles GET /nodes. Clients asking for HTML get the rendered
// configs of every enabled node unit instead of the module list.
func (s *Server) listModules(w http.ResponseWriter, r *http.Request) {
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		httputil.WriteHTML(w, http.StatusOK, s.registry.GetAllConfigs(httputil.RequestLanguage(r)))
		return
	}

	modules := s.registry.ListModules()
	out := make([]ModuleInfo, 0, len(modules))
	for _, m := range modules {
		out = append(out, moduleInfo(m))
	}
	httputil.WriteSuccess(w, out)
}

// installModule handles POST /nodes
func (s *Server) installModule(w http.ResponseWriter, r *http.Request) {
	var req InstallRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Module == "" {
		httputil.WriteBadRequest(w, "module is required")
		return
	}

	m, err := s.registry.InstallModule(r.Context(), req.Module, registry.InstallOptions{
		Version: req.Version,
		Path:    req.Path,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, moduleInfo(m))
}

// getModule handles GET /nodes/{module}
func (s *Server) getModule(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "module")
	if !ok {
		return
	}
	m, err := s.registry.GetModule(name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, moduleInfo(m))
}

// setModuleEnabled handles PUT /nodes/{module}
func (s *Server) setModuleEnabled(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "module")
	if !ok {
		return
	}
	enabled, ok := parseEnable(w, r)
	if !ok {
		return
	}

	m, err := s.registry.SetModuleEnabled(r.Context(), name, enabled)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, moduleInfo(m))
}

// uninstallModule handles DELETE /nodes/{module}
func (s *Server) uninstallModule(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "module")
	if !ok {
		return
	}
	if err := s.registry.UninstallModule(r.Context(), name); err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// getUnit handles GET /nodes/{module}/{unit}
func (s *Server) getUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := unitID(w, r)
	if !ok {
		return
	}
	u, err := s.registry.GetUnit(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, u)
}

// setUnitEnabled handles PUT /nodes/{module}/{unit}
func (s *Server) setUnitEnabled(w http.ResponseWriter, r *http.Request) {
	id, ok := unitID(w, r)
	if !ok {
		return
	}
	enabled, ok := parseEnable(w, r)
	if !ok {
		return
	}

	var u *descriptor.Unit
	var err error
	if enabled {
		u, err = s.registry.EnableNode(r.Context(), id)
	} else {
		u, err = s.registry.DisableNode(r.Context(), id)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, u)
}

// getUnitConfig handles GET /nodes/{module}/{unit}/config
func (s *Server) getUnitConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := unitID(w, r)
	if !ok {
		return
	}
	cfg, err := s.registry.GetUnitConfig(id, httputil.RequestLanguage(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteHTML(w, http.StatusOK, cfg)
}

// listUnits handles GET /units with optional state, kind and module filters
func (s *Server) listUnits(w http.ResponseWriter, r *http.Request) {
	var preds []registry.UnitPredicate

	switch state := httputil.ParseQueryString(r, "state", ""); state {
	case "":
	case "error":
		preds = append(preds, registry.HasError)
	case "loaded":
		preds = append(preds, registry.IsLoaded)
	case "enabled":
		preds = append(preds, registry.IsEnabled)
	default:
		httputil.WriteBadRequest(w, "state must be one of error, loaded, enabled")
		return
	}

	switch kind := descriptor.Kind(httputil.ParseQueryString(r, "kind", "")); kind {
	case "":
	case descriptor.KindNode, descriptor.KindPlugin:
		preds = append(preds, registry.OfKind(kind))
	default:
		httputil.WriteBadRequest(w, "kind must be node or plugin")
		return
	}

	if module := httputil.ParseQueryString(r, "module", ""); module != "" {
		preds = append(preds, registry.InModule(module))
	}

	units := s.registry.ListUnits(preds...)
	if units == nil {
		units = []*descriptor.Unit{}
	}
	httputil.WriteSuccess(w, units)
}

// listRejected handles GET /rejected
func (s *Server) listRejected(w http.ResponseWriter, r *http.Request) {
	rejected := s.registry.Rejected()
	out := make([]RejectionInfo, 0, len(rejected))
	for _, rej := range rejected {
		info := RejectionInfo{Module: rej.Module, Code: descriptor.Code(rej.Reason)}
		if rej.Reason != nil {
			info.Message = rej.Reason.Error()
		}
		out = append(out, info)
	}
	httputil.WriteSuccess(w, out)
}

// listTypes handles GET /types
func (s *Server) listTypes(w http.ResponseWriter, r *http.Request) {
	types := s.registry.Types()
	if types == nil {
		types = []string{}
	}
	httputil.WriteSuccess(w, types)
}

// getType handles GET /types/{type}
func (s *Server) getType(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "type")
	if !ok {
		return
	}
	b, found := s.registry.GetType(name)
	if !found {
		httputil.WriteNotFoundError(w, "type not registered: "+name)
		return
	}
	httputil.WriteSuccess(w, TypeInfo{
		Type:    b.Type,
		Unit:    b.UnitID,
		Kind:    b.Kind,
		Options: b.Options,
	})
}

// getCatalog handles GET /locales/{namespace}
func (s *Server) getCatalog(w http.ResponseWriter, r *http.Request) {
	ns, ok := httputil.ParsePathStringOrError(w, r, "namespace")
	if !ok {
		return
	}
	msgs, lang, found := s.registry.GetCatalog(ns, httputil.RequestLanguage(r))
	if !found {
		httputil.WriteNotFoundError(w, "no catalog for "+ns)
		return
	}
	httputil.WriteSuccess(w, CatalogResponse{Namespace: ns, Lang: lang, Messages: msgs})
}

// listIcons handles GET /icons
func (s *Server) listIcons(w http.ResponseWriter, r *http.Request) {
	out := make(map[string][]string)
	for _, m := range s.registry.ListModules() {
		var icons []string
		for _, dir := range m.Icons {
			icons = append(icons, dir.Icons...)
		}
		if len(icons) > 0 {
			out[m.Name] = icons
		}
	}
	httputil.WriteSuccess(w, out)
}

// getIcon handles GET /icons/{module}/{icon}
func (s *Server) getIcon(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "module")
	if !ok {
		return
	}
	icon, ok := httputil.ParsePathStringOrError(w, r, "icon")
	if !ok {
		return
	}
	path, err := s.registry.GetIcon(name, icon)
	if err != nil {
		s.writeError(w, err)
		return
	}
	http.ServeFile(w, r, path)
}

// getResource handles GET /resources/{module}/{path}
func (s *Server) getResource(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "module")
	if !ok {
		return
	}
	rel, ok := httputil.ParsePathStringOrError(w, r, "path")
	if !ok {
		return
	}
	path, err := s.registry.GetModuleResource(name, rel)
	if err != nil {
		s.writeError(w, err)
		return
	}
	http.ServeFile(w, r, path)
}

// listExamples handles GET /examples/{module}
func (s *Server) listExamples(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "module")
	if !ok {
		return
	}
	dir, err := s.registry.GetModuleExamples(name)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := ExamplesResponse{Module: name, Examples: []string{}}
	if dir != "" {
		_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() || filepath.Ext(path) != ".json" {
				return nil
			}
			rel, _ := filepath.Rel(dir, path)
			resp.Examples = append(resp.Examples, filepath.ToSlash(strings.TrimSuffix(rel, ".json")))
			return nil
		})
		sort.Strings(resp.Examples)
	}
	httputil.WriteSuccess(w, resp)
}

// rescan handles POST /scan
func (s *Server) rescan(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Load(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	modules := s.registry.ListModules()
	out := make([]ModuleInfo, 0, len(modules))
	for _, m := range modules {
		out = append(out, moduleInfo(m))
	}
	httputil.WriteSuccess(w, out)
}

func unitID(w http.ResponseWriter, r *http.Request) (string, bool) {
	module, ok := httputil.ParsePathStringOrError(w, r, "module")
	if !ok {
		return "", false
	}
	unit, ok := httputil.ParsePathStringOrError(w, r, "unit")
	if !ok {
		return "", false
	}
	return descriptor.UnitID(module, unit), true
}

func parseEnable(w http.ResponseWriter, r *http.Request) (bool, bool) {
	var req EnableRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return false, false
	}
	if req.Enabled == nil {
		httputil.WriteBadRequest(w, "enabled is required")
		return false, false
	}
	return *req.Enabled, true
}

// writeError maps registry errors to status codes
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrClosed):
		httputil.WriteCodedError(w, http.StatusServiceUnavailable, "closed", err)
		return
	case errors.Is(err, registry.ErrInvalidPath):
		httputil.WriteCodedError(w, http.StatusBadRequest, "invalid_path", err)
		return
	case errors.Is(err, registry.ErrResourceNotFound):
		httputil.WriteCodedError(w, http.StatusNotFound, "not_found", err)
		return
	}

	code := descriptor.Code(err)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, descriptor.ErrModuleNotFound), errors.Is(err, descriptor.ErrUnitNotFound):
		status = http.StatusNotFound
	case errors.Is(err, descriptor.ErrModuleAlreadyLoaded),
		errors.Is(err, descriptor.ErrTypeInUse),
		errors.Is(err, descriptor.ErrModuleInUse):
		status = http.StatusConflict
	case errors.Is(err, descriptor.ErrModuleNotRemovable):
		status = http.StatusForbidden
	case errors.Is(err, descriptor.ErrVersionMismatch), errors.Is(err, descriptor.ErrInvalidManifest):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		s.log.WithError(err).Error("Request failed")
	}
	httputil.WriteCodedError(w, status, code, err)
}
