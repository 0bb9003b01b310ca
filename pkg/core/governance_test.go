//go:build governance

package core_test

import (
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

const modulePath = "github.com/leapstack-labs/perfettosql"

// =============================================================================
// COHESION TEST - Core types must be shared by multiple packages
// =============================================================================

// TestGovernance_CoreCohesion verifies that types in pkg/core are genuinely
// shared across multiple packages. Single-use types should be moved to their
// sole consumer to maintain cohesion.
func TestGovernance_CoreCohesion(t *testing.T) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedImports | packages.NeedTypes |
			packages.NeedTypesInfo | packages.NeedDeps,
	}
	pkgs, err := packages.Load(cfg, modulePath+"/...")
	if err != nil {
		t.Fatalf("Failed to load packages: %v", err)
	}

	var corePkg *packages.Package
	for _, p := range pkgs {
		if p.PkgPath == modulePath+"/pkg/core" {
			corePkg = p
			break
		}
	}
	if corePkg == nil {
		t.Fatal("Could not find pkg/core")
	}

	// Count usages: CoreName -> set of importing packages
	usageMap := make(map[string]map[string]bool)
	scope := corePkg.Types.Scope()
	for _, name := range scope.Names() {
		if scope.Lookup(name).Exported() {
			usageMap[name] = make(map[string]bool)
		}
	}

	base := modulePath + "/"
	for _, p := range pkgs {
		if p.PkgPath == corePkg.PkgPath || strings.HasSuffix(p.PkgPath, "_test") || p.TypesInfo == nil {
			continue
		}
		for _, obj := range p.TypesInfo.Uses {
			if obj.Pkg() == nil || obj.Pkg().Path() != corePkg.PkgPath {
				continue
			}
			if importers, ok := usageMap[obj.Name()]; ok {
				importers[strings.TrimPrefix(p.PkgPath, base)] = true
			}
		}
	}

	for name, importers := range usageMap {
		if isCohesionAllowlisted(name) {
			continue
		}
		switch len(importers) {
		case 0:
			t.Logf("WARNING: Unused Core Type: %s (consider deleting)", name)
		case 1:
			var user string
			for k := range importers {
				user = k
			}
			t.Errorf("COHESION VIOLATION: 'core.%s' is used ONLY by '%s'.\n"+
				"   Fix: Move it from pkg/core to %s.",
				name, user, user)
		}
	}
}

// isCohesionAllowlisted returns true for names allowed to have single usage.
func isCohesionAllowlisted(name string) bool {
	allowlist := map[string]bool{
		"AdapterConfig":  true, // Config struct for the adapter extension point
		"Store":          true, // Interface - one implementation in internal/state
		"PersistedMacro": true,
		"Run":            true,
	}
	return allowlist[name]
}

// =============================================================================
// LAYERING TEST - pkg/ must not depend on internal/
// =============================================================================

// TestGovernance_PublicPackagesStayPublic ensures no package under pkg/
// imports an internal package, so the front end stays embeddable.
func TestGovernance_PublicPackagesStayPublic(t *testing.T) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports}
	pkgs, err := packages.Load(cfg, modulePath+"/pkg/...")
	if err != nil {
		t.Fatalf("Failed to load packages: %v", err)
	}
	for _, pkg := range pkgs {
		for path := range pkg.Imports {
			if strings.HasPrefix(path, modulePath+"/internal/") {
				t.Errorf("LAYERING VIOLATION: '%s' imports '%s'",
					strings.TrimPrefix(pkg.PkgPath, modulePath+"/"), path)
			}
		}
	}
}
