package submit

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const testScene = `Root {
 name /jobs/comp.nk
 views {main left right}
}
Write {
 file /renders/a.exr
 name WriteA
}
DeepWrite {
 file /renders/b.exr
 name WriteB
}
Read {
 file /assets/plate.exr
 name Plate
}
`

func TestSceneChoices(t *testing.T) {
	scene := filepath.Join(t.TempDir(), "comp.nk")
	if err := os.WriteFile(scene, []byte(testScene), 0o644); err != nil {
		t.Fatal(err)
	}

	nodes, views, err := sceneChoices(scene)
	if err != nil {
		t.Fatalf("sceneChoices() error = %v", err)
	}
	if !reflect.DeepEqual(nodes, []string{"WriteA", "WriteB"}) {
		t.Errorf("nodes = %v, want [WriteA WriteB]", nodes)
	}
	if !reflect.DeepEqual(views, []string{"main", "left", "right"}) {
		t.Errorf("views = %v, want [main left right]", views)
	}
}

func TestSceneChoicesMissingScene(t *testing.T) {
	if _, _, err := sceneChoices(filepath.Join(t.TempDir(), "nope.nk")); err == nil {
		t.Fatal("sceneChoices() error = nil, want error")
	}
}
