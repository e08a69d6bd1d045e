package incoming

import (
	"fmt"
	"os"
	"strings"

	"github.com/archivekeep/incoming-queue/archive"
	"github.com/archivekeep/incoming-queue/config"
	"github.com/archivekeep/incoming-queue/deb"
)

// PrepareHeaders implements the first half of §4.7: for every non-manifest,
// non-byhand, non-unknown CandidateFile, stage it (if not already staged)
// and read its package headers, verifying them against the manifest.
func PrepareHeaders(state *State, candidate *Candidate) error {
	for i := range candidate.Files {
		file := &candidate.Files[i]
		switch file.Type {
		case TypeManifest, TypeByhand, TypeUnknown:
			continue
		case TypeBinaryDeb, TypeBinaryUdeb:
			if err := prepareBinary(state, candidate, file); err != nil {
				return err
			}
		case TypeSourceDsc:
			if err := prepareSource(state, candidate, file); err != nil {
				return err
			}
		}
	}
	return nil
}

func prepareBinary(state *State, candidate *Candidate, file *CandidateFile) error {
	if err := Stage(state, candidate, file); err != nil {
		return err
	}
	f, err := os.Open(file.TempFilename)
	if err != nil {
		return wrapError(IoError, err)
	}
	defer f.Close()

	pkg, err := deb.NewPackage(f)
	if err != nil {
		return newError(Malformed, "parsing %s: %w", file.DeclaredName, err)
	}
	file.Deb = pkg

	if err := deb.ValidatePackageName(pkg.Metadata.Package); err != nil {
		return newError(Malformed, "%s: %w", file.DeclaredName, err)
	}
	if err := deb.ValidateVersion(pkg.Metadata.Version); err != nil {
		return newError(Malformed, "%s: %w", file.DeclaredName, err)
	}
	if pkg.Metadata.Architecture != file.DeclaredArchitecture {
		return newError(Malformed, "%s: control architecture %q does not match filename architecture %q", file.DeclaredName, pkg.Metadata.Architecture, file.DeclaredArchitecture)
	}
	if !contains(candidate.Binaries, pkg.Metadata.Package) {
		return newError(Malformed, "%s: package %q not listed in manifest Binary field", file.DeclaredName, pkg.Metadata.Package)
	}
	source := pkg.Metadata.Source
	if source == "" {
		source = pkg.Metadata.Package
	}
	if source != candidate.Source {
		return newError(Malformed, "%s: control Source %q does not match manifest Source %q", file.DeclaredName, source, candidate.Source)
	}
	return nil
}

func prepareSource(state *State, candidate *Candidate, file *CandidateFile) error {
	if candidate.IsBinNMU {
		return newError(Malformed, "source description present in a binary-NMU manifest")
	}
	if err := Stage(state, candidate, file); err != nil {
		return err
	}
	raw, err := os.ReadFile(file.TempFilename)
	if err != nil {
		return wrapError(IoError, err)
	}
	dsc, err := deb.ParseDsc(string(raw))
	if err != nil {
		return newError(Malformed, "parsing %s: %w", file.DeclaredName, err)
	}
	file.Dsc = dsc

	if dsc.Source != candidate.Source {
		return newError(Malformed, "%s: dsc Source %q does not match manifest Source %q", file.DeclaredName, dsc.Source, candidate.Source)
	}
	if dsc.Version != candidate.SourceVersion {
		return newError(Malformed, "%s: dsc Version %q does not match manifest source version %q", file.DeclaredName, dsc.Version, candidate.SourceVersion)
	}

	// The dsc participates in its own checksums map under its own standard
	// name, per §4.7 ("append the dsc itself to its own file list").
	dscName := fmt.Sprintf("%s_%s.dsc", dsc.Source, dsc.Version)
	if !hasDscFile(dsc, dscName) {
		sums, err := deb.ComputeChecksums(strings.NewReader(string(raw)))
		if err != nil {
			return wrapError(IoError, err)
		}
		dsc.Files = append(dsc.Files, deb.DscFile{Name: dscName, Checksums: sums})
	}
	return nil
}

func hasDscFile(dsc *deb.Dsc, name string) bool {
	for _, f := range dsc.Files {
		if f.Name == name {
			return true
		}
	}
	return false
}

func contains(list []string, item string) bool {
	for _, s := range list {
		if s == item {
			return true
		}
	}
	return false
}

// BuildPackages implements the second half of §4.7: for each destination
// distribution and each package-bearing CandidateFile, build one
// CandidatePackage with resolved component, filekeys, and rewritten
// control.
func BuildPackages(state *State, candidate *Candidate, dists map[string]*config.Distribution, pool *archive.Pool) error {
	for _, into := range candidate.distributionTargets() {
		dist := dists[into]
		pd := PerDistribution{Into: into}

		for i := range candidate.Files {
			file := &candidate.Files[i]
			switch file.Type {
			case TypeBinaryDeb, TypeBinaryUdeb:
				pkg, err := buildBinaryPackage(candidate, i, dist, pool)
				if err != nil {
					return err
				}
				pd.Packages = append(pd.Packages, pkg)
			case TypeSourceDsc:
				pkg, err := buildSourcePackage(state, candidate, i, dist, pool)
				if err != nil {
					return err
				}
				pd.Packages = append(pd.Packages, pkg)
			}
		}
		candidate.PerDistribution = append(candidate.PerDistribution, pd)
	}
	return nil
}

// distributionTargets is set by the caller (via SetTargets) after
// permission evaluation; kept as a field access here to keep BuildPackages'
// signature stable across callers.
func (c *Candidate) distributionTargets() []string { return c.targets }

// SetTargets records the distribution refs this candidate will be built
// against, once permission evaluation has resolved them.
func (c *Candidate) SetTargets(targets []string) { c.targets = targets }

func resolveSectionPriority(dist *config.Distribution, fileType string, pkgName, declaredSection, declaredPriority string) (section, priority string, err error) {
	section, priority = declaredSection, declaredPriority
	if dist != nil {
		if ov, ok := dist.Override(fileType, pkgName); ok {
			if ov.Section != "" {
				section = ov.Section
			}
			if ov.Priority != "" {
				priority = ov.Priority
			}
		}
	}
	if section == "" || section == "-" {
		return "", "", newError(Conflict, "package %s has no resolvable section", pkgName)
	}
	if priority == "" || priority == "-" {
		return "", "", newError(Conflict, "package %s has no resolvable priority", pkgName)
	}
	return section, priority, nil
}

// resolveComponent picks an archive component by the classic section-prefix
// heuristic ("contrib/net" → "contrib"), falling back to "main", and
// enforces the udeb-component restriction.
func resolveComponent(dist *config.Distribution, section string, isUdeb bool) (string, error) {
	component := "main"
	if i := strings.IndexByte(section, '/'); i >= 0 {
		component = section[:i]
	}
	if dist == nil {
		return component, nil
	}
	if isUdeb {
		if len(dist.UdebComponents) > 0 && !dist.HasUdebComponent(component) {
			return "", newError(Conflict, "component %q not permitted for udebs in distribution %s", component, dist.Name)
		}
		return component, nil
	}
	if len(dist.Components) > 0 && !dist.HasComponent(component) {
		component = "main"
		if !dist.HasComponent(component) {
			return "", newError(Conflict, "no permitted component found for section %q in distribution %s", section, dist.Name)
		}
	}
	return component, nil
}

func buildBinaryPackage(candidate *Candidate, fileIdx int, dist *config.Distribution, pool *archive.Pool) (CandidatePackage, error) {
	file := &candidate.Files[fileIdx]
	pkg := file.Deb
	fileType := "binary"
	isUdeb := file.Type == TypeBinaryUdeb
	if isUdeb {
		fileType = "udeb"
	}

	section, priority, err := resolveSectionPriority(dist, fileType, pkg.Metadata.Package, pkg.Metadata.Section, pkg.Metadata.Priority)
	if err != nil {
		return CandidatePackage{}, err
	}
	component, err := resolveComponent(dist, section, isUdeb)
	if err != nil {
		return CandidatePackage{}, err
	}

	ext := "deb"
	if isUdeb {
		ext = "udeb"
	}
	filekey := archive.BinaryFilekey(component, candidate.Source, pkg.Metadata.Package, pkg.Metadata.Version, pkg.Metadata.Architecture, ext)

	result, err := pool.CanAdd(filekey, file.Checksums)
	if result == archive.Collision {
		return CandidatePackage{}, newError(Conflict, "pool collision for %s: %v", filekey, err)
	}

	cp := CandidatePackage{
		MasterIdx: fileIdx,
		Component: component,
		Name:      pkg.Metadata.Package,
		Version:   pkg.Metadata.Version,
		Filekeys:  []string{filekey},
	}
	if result == archive.PresentMatching {
		cp.Files = []int{-1}
	} else {
		cp.Files = []int{fileIdx}
	}
	if err := candidate.ClaimFilekey(filekey, fileIdx); err != nil {
		return CandidatePackage{}, err
	}

	pkg.Metadata.Section = section
	pkg.Metadata.Priority = priority
	cp.Control = pkg.RenderControlStanza([][2]string{
		{string(deb.PackagesFieldFilename), filekey},
		{string(deb.PackagesFieldSize), fmt.Sprintf("%d", file.Checksums.Size)},
		{string(deb.PackagesFieldMD5sum), file.Checksums.Digests[deb.MD5]},
		{string(deb.PackagesFieldSHA1), file.Checksums.Digests[deb.SHA1]},
		{string(deb.PackagesFieldSHA256), file.Checksums.Digests[deb.SHA256]},
	})
	return cp, nil
}

func buildSourcePackage(state *State, candidate *Candidate, fileIdx int, dist *config.Distribution, pool *archive.Pool) (CandidatePackage, error) {
	file := &candidate.Files[fileIdx]
	dsc := file.Dsc

	section, priority, err := resolveSectionPriority(dist, "source", dsc.Source, file.DeclaredSection, file.DeclaredPriority)
	if err != nil {
		return CandidatePackage{}, err
	}
	component, err := resolveComponent(dist, section, false)
	if err != nil {
		return CandidatePackage{}, err
	}

	cp := CandidatePackage{
		MasterIdx: fileIdx,
		Component: component,
		Name:      dsc.Source,
		Version:   dsc.Version,
		Directory: archive.SourceDir(component, dsc.Source),
	}

	for _, df := range dsc.Files {
		filekey := archive.SourceFilekey(component, dsc.Source, df.Name)
		result, err := pool.CanAdd(filekey, df.Checksums)
		if result == archive.Collision {
			return CandidatePackage{}, newError(Conflict, "pool collision for %s: %v", filekey, err)
		}
		cp.Filekeys = append(cp.Filekeys, filekey)
		if result == archive.PresentMatching {
			// Already in the pool: mark it used without staging, in the
			// sense of "not needed because it is already there."
			if backing := candidate.fileForDscEntry(df.Name, fileIdx); backing >= 0 {
				candidate.Files[backing].Used = true
			}
			cp.Files = append(cp.Files, -1)
		} else {
			backing := candidate.fileForDscEntry(df.Name, fileIdx)
			if backing < 0 {
				return CandidatePackage{}, newError(Missing, "file %q is needed for %s, not yet registered in the pool and not found among the uploaded files", df.Name, dsc.Source)
			}
			if err := Stage(state, candidate, &candidate.Files[backing]); err != nil {
				return CandidatePackage{}, err
			}
			cp.Files = append(cp.Files, backing)
		}
		if err := candidate.ClaimFilekey(filekey, fileIdx); err != nil {
			return CandidatePackage{}, err
		}
	}

	cp.Control = dsc.String()
	return cp, nil
}

// fileForDscEntry locates the CandidateFile backing a file named in a dsc's
// Files list: the dsc's own master entry if the name matches the dsc
// itself, otherwise another CandidateFile declared in the manifest with the
// same name. Returns -1 if no such file was ever declared.
func (c *Candidate) fileForDscEntry(name string, dscIdx int) int {
	if c.Files[dscIdx].DeclaredName == name {
		return dscIdx
	}
	for i := range c.Files {
		if i != dscIdx && c.Files[i].DeclaredName == name {
			return i
		}
	}
	return -1
}
