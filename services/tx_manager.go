package services

import "teamdrive/repositories"

// TxManager runs a closure in one database transaction. Every mutating
// operation in this package is a single WithTransaction call; reads made
// inside it must pass the tx through to the repositories.
type TxManager = repositories.TxManager
