package fileaccess

// Open parses target and returns the matching FileAccess with its Location.
// S3 targets build a client from the environment.
func Open(target string) (FileAccess, Location, error) {
	loc, err := ParseLocation(target)
	if err != nil {
		return nil, Location{}, err
	}
	if !loc.S3 {
		return &FSAccess{}, loc, nil
	}
	s3a, err := NewS3FromEnv()
	if err != nil {
		return nil, Location{}, err
	}
	return s3a, loc, nil
}
