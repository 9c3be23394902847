package profile

// Permissions son los tres booleanos derivados del rol. Nunca se persisten;
// se recalculan cada vez que cambia el perfil.
type Permissions struct {
	CanWriteActivity bool `json:"canWriteActivity"`
	CanViewGallery   bool `json:"canViewGallery"`
	CanManageBilling bool `json:"canManageBilling"`
}

func (t Teacher) Permissions() Permissions {
	return Permissions{
		CanWriteActivity: true,
		CanViewGallery:   true,
		CanManageBilling: false,
	}
}

func (p Parent) Permissions() Permissions {
	return Permissions{
		CanWriteActivity: false,
		CanViewGallery:   true,
		CanManageBilling: p.IsPayer,
	}
}

func (m Manager) Permissions() Permissions {
	return Permissions{
		CanWriteActivity: true,
		CanViewGallery:   true,
		CanManageBilling: true,
	}
}

// CalculatePermissions es el punto de entrada tolerante a nil: sin perfil,
// todo en false.
func CalculatePermissions(p Profile) Permissions {
	if p == nil {
		return Permissions{}
	}
	return p.Permissions()
}
