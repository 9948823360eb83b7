package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/Faultbox/scenery/pkg/assetimport"
	"github.com/Faultbox/scenery/pkg/importer"
	"github.com/Faultbox/scenery/pkg/postprocess"
	"github.com/Faultbox/scenery/pkg/scene"
)

func cmdFormats(args []string, out io.Writer) error {
	imp := assetimport.New()

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FORMAT\tEXTENSIONS\tSIGNATURE\tKIND\tDESCRIPTION")
	for _, info := range imp.Formats() {
		sig := "no"
		if info.SupportsSignature {
			sig = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			info.Name, strings.Join(info.Extensions, ","), sig, formatKind(info.Flags), info.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Post-processing steps:")
	for _, id := range imp.Steps() {
		fmt.Fprintf(out, "  %s\n", id)
	}
	return nil
}

func formatKind(f importer.InfoFlags) string {
	var kinds []string
	if f&importer.FlagText != 0 {
		kinds = append(kinds, "text")
	}
	if f&importer.FlagBinary != 0 {
		kinds = append(kinds, "binary")
	}
	if f&importer.FlagCompressed != 0 {
		kinds = append(kinds, "compressed")
	}
	if f&importer.FlagExperimental != 0 {
		kinds = append(kinds, "experimental")
	}
	return strings.Join(kinds, "+")
}

func cmdInfo(args []string, out io.Writer) error {
	e, files, err := setup("info", args)
	if err != nil {
		return err
	}
	defer e.close()
	if len(files) != 1 {
		return usageError("info [options] <file>")
	}

	sc, err := e.imp.ReadFile(files[0], e.cfg.StepIDs(), e.props)
	if err != nil {
		return err
	}
	printScene(out, files[0], sc)
	return nil
}

func printScene(out io.Writer, name string, sc *scene.Scene) {
	st := sc.Stats()
	fmt.Fprintf(out, "File:       %s\n", name)
	fmt.Fprintf(out, "Nodes:      %d\n", st.Nodes)
	fmt.Fprintf(out, "Meshes:     %d (%d vertices, %d faces)\n", st.Meshes, st.Vertices, st.Faces)
	fmt.Fprintf(out, "Materials:  %d\n", st.Materials)
	fmt.Fprintf(out, "Textures:   %d embedded\n", st.Textures)
	fmt.Fprintf(out, "Animations: %d\n", st.Animations)
	fmt.Fprintf(out, "Cameras:    %d\n", st.Cameras)
	if sc.Flags&scene.FlagIncomplete != 0 {
		fmt.Fprintln(out, "Flags:      incomplete")
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Node tree:")
	sc.Walk(func(id scene.NodeID, depth int) bool {
		n := sc.Node(id)
		fmt.Fprintf(out, "  %s%s", strings.Repeat("  ", depth), n.Name)
		if len(n.Meshes) > 0 {
			fmt.Fprintf(out, " meshes=%v", n.Meshes)
		}
		fmt.Fprintln(out)
		return true
	})

	if len(sc.Meshes()) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Meshes:")
		for i, m := range sc.Meshes() {
			fmt.Fprintf(out, "  [%d] %s: %d vertices, %d faces, material %d%s\n",
				i, m.Name, m.NumVertices(), len(m.Faces), m.MaterialIndex, meshAttributes(m))
		}
	}

	if len(sc.Materials()) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Materials:")
		for i, mat := range sc.Materials() {
			fmt.Fprintf(out, "  [%d] %s\n", i, mat.Name())
			for _, ref := range mat.Textures() {
				fmt.Fprintf(out, "      %s[%d] %s\n", ref.Type, ref.Slot, ref.Path)
			}
		}
	}
}

func meshAttributes(m *scene.Mesh) string {
	var attrs []string
	if m.HasNormals() {
		attrs = append(attrs, "normals")
	}
	if m.HasTangents() {
		attrs = append(attrs, "tangents")
	}
	if n := m.NumUVChannels(); n > 0 {
		attrs = append(attrs, fmt.Sprintf("uv:%d", n))
	}
	if m.HasColors(0) {
		attrs = append(attrs, "colors")
	}
	if len(attrs) == 0 {
		return ""
	}
	return " [" + strings.Join(attrs, " ") + "]"
}

func cmdValidate(args []string, out io.Writer) error {
	e, files, err := setup("validate", args)
	if err != nil {
		return err
	}
	defer e.close()
	if len(files) == 0 {
		return usageError("validate [options] <file>...")
	}

	steps := append([]postprocess.ID{postprocess.IDValidate}, e.cfg.StepIDs()...)
	failed := 0
	for _, name := range files {
		_, err := e.imp.ReadFile(name, steps, e.props)
		if err == nil {
			fmt.Fprintf(out, "ok    %s\n", name)
			continue
		}
		failed++
		e.log.Debug("validation failed", zap.String("file", name), zap.Error(err))

		var verr *scene.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintf(out, "FAIL  %s: %d violations\n", name, len(verr.Violations))
			for _, v := range verr.Violations {
				fmt.Fprintf(out, "        %s\n", v.Error())
			}
			continue
		}
		fmt.Fprintf(out, "FAIL  %s (%s): %v\n", name, assetimport.StageOf(err), err)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}
