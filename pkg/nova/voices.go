// Copyright 2025 VeloxVOIP.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// 	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package nova

import (
	"strings"

	"github.com/veloxvoip/callengine/pkg/errors"
)

// Voice describes one synthesized speaker the stream can render.
type Voice struct {
	ID       string
	Language string
	Gender   string
}

var voiceCatalog = []Voice{
	{ID: "tiffany", Language: "en-US", Gender: "female"},
	{ID: "matthew", Language: "en-US", Gender: "male"},
	{ID: "amy", Language: "en-GB", Gender: "female"},
	{ID: "ambre", Language: "fr-FR", Gender: "female"},
	{ID: "florian", Language: "fr-FR", Gender: "male"},
	{ID: "beatrice", Language: "it-IT", Gender: "female"},
	{ID: "lorenzo", Language: "it-IT", Gender: "male"},
	{ID: "greta", Language: "de-DE", Gender: "female"},
	{ID: "lennart", Language: "de-DE", Gender: "male"},
	{ID: "lupe", Language: "es-US", Gender: "female"},
	{ID: "carlos", Language: "es-US", Gender: "male"},
}

// Voices returns the supported voice catalog.
func Voices() []Voice {
	out := make([]Voice, len(voiceCatalog))
	copy(out, voiceCatalog)
	return out
}

// ResolveVoice validates a configured voice id, case-insensitively.
func ResolveVoice(id string) (string, error) {
	for _, v := range voiceCatalog {
		if strings.EqualFold(v.ID, id) {
			return v.ID, nil
		}
	}
	return "", errors.Wrap(errors.ErrInvalidVoice, id)
}
