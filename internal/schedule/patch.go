package schedule

// Patch is a partial update. Nil fields are left unchanged. The taken map is
// not patchable; it only changes one occurrence at a time.
type Patch struct {
	Name   *string   `json:"name,omitempty"`
	Dosage *string   `json:"dosage,omitempty"`
	Notes  *string   `json:"notes,omitempty"`
	Days   *[]int    `json:"days,omitempty"`
	Times  *[]string `json:"times,omitempty"`
}

// Apply returns a copy of m with the patch applied.
func (p Patch) Apply(m Medication) Medication {
	out := m.Clone()
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Dosage != nil {
		out.Dosage = *p.Dosage
	}
	if p.Notes != nil {
		out.Notes = *p.Notes
	}
	if p.Days != nil {
		out.Days = append([]int(nil), (*p.Days)...)
	}
	if p.Times != nil {
		out.Times = append([]string(nil), (*p.Times)...)
	}
	return out
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Name == nil && p.Dosage == nil && p.Notes == nil && p.Days == nil && p.Times == nil
}
